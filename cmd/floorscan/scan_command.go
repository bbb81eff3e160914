package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
	"github.com/adverant/nexus/floorscan-worker/internal/clients"
	"github.com/adverant/nexus/floorscan-worker/internal/income"
	"github.com/adverant/nexus/floorscan-worker/internal/logging"
	"github.com/adverant/nexus/floorscan-worker/internal/processor"
)

type scanOptions struct {
	catalogPath string
	visionURL   string
	mode        string
	language    string
	parallel    int
	timeout     time.Duration
	asJSON      bool
}

func newScanCommand() *cobra.Command {
	opts := scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Scan a screenshot against a catalog file",
		Long: "Scan a screenshot locally. Without --vision-url regions are cut " +
			"geometrically and read with Tesseract only.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "Catalog JSON file")
	cmd.Flags().StringVar(&opts.visionURL, "vision-url", os.Getenv("VISION_URL"), "Vision recognizer base URL")
	cmd.Flags().StringVar(&opts.mode, "mode", processor.ModePerCard, "Scan mode: per-card or whole-floor")
	cmd.Flags().StringVar(&opts.language, "lang", "eng", "Tesseract language")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 5, "Regions processed concurrently")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall scan timeout")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Output the full batch report as JSON")
	_ = cmd.MarkFlagRequired("catalog")

	return cmd
}

func runScan(cmd *cobra.Command, path string, opts scanOptions) error {
	entries, err := catalog.LoadFile(opts.catalogPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	logger := logging.NewLogger("Scan")
	ocr := processor.NewTesseractOCR(&processor.TesseractConfig{Language: opts.language})
	chain := []processor.Extractor{processor.NewClassicalExtractor(ocr, 0.2)}

	var segmenter *processor.Segmenter
	var vision *clients.VisionClient
	if opts.visionURL != "" {
		vision = clients.NewVisionClient(opts.visionURL, 30*time.Second)
		segmenter = processor.NewSegmenter(vision, logger)
		chain = append([]processor.Extractor{processor.NewStructuredExtractor(vision, 0.2)}, chain...)
	} else {
		segmenter = processor.NewSegmenter(nil, logger)
	}

	pipeOpts := processor.DefaultPipelineOptions()
	pipeOpts.MaxParallelRegions = opts.parallel
	pipeline := processor.NewPipeline(segmenter, processor.NewFallbackExtractor(logger, chain...), pipeOpts, logger)
	if vision != nil {
		pipeline.WithFloorReader(vision)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	img := processor.SourceImage{Data: data, MimeType: processor.DetectImageMimeType(data)}
	var report *processor.BatchReport
	switch opts.mode {
	case processor.ModePerCard:
		report, err = pipeline.Scan(ctx, img, entries)
	case processor.ModeWholeFloor:
		if vision == nil {
			return fmt.Errorf("whole-floor mode needs --vision-url")
		}
		report, err = pipeline.ScanWholeFloor(ctx, img, entries)
	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}
	if err != nil {
		return err
	}

	if opts.asJSON {
		return writeJSON(cmd, report)
	}
	printReport(cmd, report)
	return nil
}

func printReport(cmd *cobra.Command, report *processor.BatchReport) {
	out := cmd.OutOrStdout()

	rows := make([][]string, 0, len(report.Successful))
	for _, c := range report.Successful {
		status := "ok"
		if !c.Verification.Passed {
			status = "mismatch"
		}
		if c.Extracted.TraitsAutoApplied {
			status += " +inferred"
		}
		rows = append(rows, []string{
			strconv.Itoa(c.Region.Index),
			c.Match.Entry.Name,
			c.Candidate.Mutation,
			strings.Join(c.Candidate.Traits, ", "),
			income.FormatGameNumber(c.Verification.ClaimedIncome),
			income.FormatGameNumber(c.Verification.ExpectedIncome),
			fmt.Sprintf("%.2f", c.OverallConfidence),
			status,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Name", "Mutation", "Traits", "Shown", "Expected", "Conf", "Status"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))

	if len(report.Failed) > 0 {
		failed := make([][]string, 0, len(report.Failed))
		for _, f := range report.Failed {
			partial := ""
			if f.Partial != nil {
				partial = f.Partial.Name
			}
			failed = append(failed, []string{strconv.Itoa(f.Region.Index), string(f.Stage), string(f.Code), partial})
		}
		fmt.Fprintln(out, renderTable([]string{"#", "Stage", "Code", "Read as"}, failed, nil))
	}

	fmt.Fprintf(out, "Batch %s: %d/%d regions resolved (layout %s via %s) in %dms\n",
		report.BatchID, len(report.Successful), report.TotalRegions,
		report.Layout, report.SegmentationSource, report.AggregateTimingMs)
}
