package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/floorscan-worker/internal/income"
	"github.com/adverant/nexus/floorscan-worker/internal/verify"
)

// parseAmount accepts plain integers and game notation such as 62.5K or 1.2M.
func parseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if n, ok := income.ParseGameNumber(s); ok {
		return n, nil
	}
	return 0, fmt.Errorf("invalid amount %q", s)
}

// normalizeTraitFlags maps trait labels to keys and rejects unknown ones.
func normalizeTraitFlags(labels []string) ([]string, error) {
	keys := make([]string, 0, len(labels))
	for _, l := range labels {
		key, ok := income.NormalizeTrait(l)
		if !ok {
			return nil, fmt.Errorf("unknown trait %q (see 'floorscan modifiers')", l)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func newIncomeCommand() *cobra.Command {
	var mutation string
	var traits []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "income <base>",
		Short: "Compute the income a card should show",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			keys, err := normalizeTraitFlags(traits)
			if err != nil {
				return err
			}

			res := income.Compute(base, income.NormalizeMutation(mutation), keys)
			if asJSON {
				return writeJSON(cmd, res)
			}

			rows := make([][]string, 0, len(res.Trace))
			for i, line := range res.Trace {
				rows = append(rows, []string{strconv.Itoa(i + 1), line})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Step", "Detail"}, rows, []columnAlignment{alignRight, alignLeft}))
			fmt.Fprintf(out, "Total: %s/s (%d)\n", income.FormatGameNumber(res.Total), res.Total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mutation, "mutation", "m", "", "Mutation label, e.g. gold or rainbow")
	cmd.Flags().StringSliceVarP(&traits, "trait", "t", nil, "Trait label (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newSolveCommand() *cobra.Command {
	var mutation string
	var traits []string
	var claimed string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "solve <base>",
		Short: "Find traits that explain a claimed income",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			claim, err := parseAmount(claimed)
			if err != nil {
				return fmt.Errorf("--claimed: %w", err)
			}
			keys, err := normalizeTraitFlags(traits)
			if err != nil {
				return err
			}

			sol := verify.NewSolver(verify.DefaultSolverOptions()).
				Solve(claim, base, income.NormalizeMutation(mutation), keys)
			if asJSON {
				return writeJSON(cmd, sol)
			}

			out := cmd.OutOrStdout()
			if !sol.Found {
				fmt.Fprintf(out, "No explanation found (ratio %.2f): %s\n", sol.Ratio, sol.Reason)
				return nil
			}
			rows := make([][]string, 0, len(sol.Candidates))
			for _, c := range sol.Candidates {
				rows = append(rows, []string{
					strings.Join(c.Traits, " + "),
					income.FormatGameNumber(c.Income),
					fmt.Sprintf("%.3f", c.Ratio),
					fmt.Sprintf("%.2f", c.Confidence),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Traits", "Income", "Ratio", "Confidence"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(out, "Best: %s (auto-apply: %t)\n", strings.Join(sol.Traits, " + "), sol.AutoApply)
			return nil
		},
	}

	cmd.Flags().StringVar(&claimed, "claimed", "", "Income shown on the card, e.g. 400K")
	cmd.Flags().StringVarP(&mutation, "mutation", "m", "", "Mutation label")
	cmd.Flags().StringSliceVarP(&traits, "trait", "t", nil, "Trait already known (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	_ = cmd.MarkFlagRequired("claimed")
	return cmd
}

func newModifiersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "modifiers",
		Short: "List known mutations and traits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			for _, key := range income.MutationKeys() {
				m, _ := income.LookupMutation(key)
				rows = append(rows, []string{"mutation", m.Key, m.Name, "x" + strconv.FormatFloat(m.Multiplier, 'g', -1, 64)})
			}
			for _, key := range income.TraitKeys() {
				t, _ := income.LookupTrait(key)
				rows = append(rows, []string{"trait", t.Key, t.Name, "x" + strconv.FormatFloat(t.Multiplier, 'g', -1, 64)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Kind", "Key", "Name", "Multiplier"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}
