/**
 * Qdrant catalog index for the FloorScan Worker
 *
 * Catalog names are stored as hashed character-trigram vectors so that a
 * region whose name matched nothing can still be shown its nearest catalog
 * names for manual review. Uses Qdrant's native gRPC API.
 */

package storage

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
)

// NameVectorSize is the dimension of catalog name vectors.
const NameVectorSize = 256

// upsertBatchSize bounds the points per upsert request
const upsertBatchSize = 256

// catalogNamespace seeds deterministic point IDs so re-indexing overwrites.
var catalogNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("floorscan.catalog"))

// QdrantClient handles vector database operations
type QdrantClient struct {
	client           qdrant.PointsClient
	collectionClient qdrant.CollectionsClient
	conn             *grpc.ClientConn
	collectionName   string
}

// Suggestion is a catalog entry near a query name.
type Suggestion struct {
	CatalogID string  `json:"catalogId"`
	Name      string  `json:"name"`
	Score     float32 `json:"score"`
}

// NewQdrantClient creates a new Qdrant client
func NewQdrantClient(address string, collectionName string) (*QdrantClient, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}
	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	qc := &QdrantClient{
		client:           qdrant.NewPointsClient(conn),
		collectionClient: qdrant.NewCollectionsClient(conn),
		conn:             conn,
		collectionName:   collectionName,
	}

	if err := qc.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return qc, nil
}

// ensureCollection creates the collection if it doesn't exist
func (q *QdrantClient) ensureCollection(ctx context.Context) error {
	listResp, err := q.collectionClient.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == q.collectionName {
			return nil
		}
	}

	_, err = q.collectionClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     NameVectorSize,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// IndexCatalog upserts one point per entry. Point IDs derive from the
// catalog ID, so indexing the same catalog twice is idempotent.
func (q *QdrantClient) IndexCatalog(ctx context.Context, entries []catalog.Entry) (int, error) {
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		vec := NameVector(e.Name)
		if vec == nil {
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: CatalogPointID(e.ID)},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: vec},
				},
			},
			Payload: map[string]*qdrant.Value{
				"catalog_id":  stringValue(e.ID),
				"name":        stringValue(e.Name),
				"rarity":      stringValue(e.Rarity),
				"base_income": {Kind: &qdrant.Value_IntegerValue{IntegerValue: e.BaseIncome}},
			},
		})
	}

	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collectionName,
			Points:         points[start:end],
		})
		if err != nil {
			return start, fmt.Errorf("failed to upsert catalog points: %w", err)
		}
	}
	return len(points), nil
}

// Suggest returns up to limit catalog names closest to name.
func (q *QdrantClient) Suggest(ctx context.Context, name string, limit int) ([]Suggestion, error) {
	vec := NameVector(name)
	if vec == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	results, err := q.client.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collectionName,
		Vector:         vec,
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog index: %w", err)
	}

	out := make([]Suggestion, 0, len(results.Result))
	for _, r := range results.Result {
		out = append(out, Suggestion{
			CatalogID: payloadString(r.Payload, "catalog_id"),
			Name:      payloadString(r.Payload, "name"),
			Score:     r.Score,
		})
	}
	return out, nil
}

// GetCollectionInfo returns collection statistics
func (q *QdrantClient) GetCollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	info, err := q.collectionClient.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: q.collectionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	return map[string]interface{}{
		"collection_name": q.collectionName,
		"vectors_count":   info.Result.GetVectorsCount(),
		"points_count":    info.Result.GetPointsCount(),
		"status":          info.Result.GetStatus().String(),
	}, nil
}

// Close closes the Qdrant client connection
func (q *QdrantClient) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// CatalogPointID is the Qdrant point ID of a catalog entry.
func CatalogPointID(catalogID string) string {
	return uuid.NewSHA1(catalogNamespace, []byte(catalogID)).String()
}

// NameVector hashes the character trigrams of the normalized name into a
// unit-length vector. It returns nil for blank names.
func NameVector(name string) []float32 {
	norm := catalog.Normalize(name)
	if norm == "" {
		return nil
	}

	runes := []rune(" " + norm + " ")
	vec := make([]float32, NameVectorSize)
	h := fnv.New32a()
	for i := 0; i+3 <= len(runes); i++ {
		h.Reset()
		h.Write([]byte(string(runes[i : i+3])))
		vec[h.Sum32()%NameVectorSize]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return nil
	}
	norm2 := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm2
	}
	return vec
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok && v != nil {
		return v.GetStringValue()
	}
	return ""
}
