package search

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// QdrantConfig holds configuration for the Qdrant connection.
type QdrantConfig struct {
	Host      string
	Port      int
	Alias     string // stable alias queries and upserts go through
	APIKey    string // Qdrant Cloud API key (enables TLS automatically)
	UseTLS    bool   // explicitly enable TLS without an API key
	VectorDim int
}

// apiKeyInterceptor creates a unary interceptor that adds the API key to metadata.
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantIndex is the search index client. All live reads and writes address
// the collection through a stable alias; full rebuilds load a staging
// collection and repoint the alias atomically, so the index is never
// observably empty — not even mid-rebuild.
type QdrantIndex struct {
	conn          *grpc.ClientConn
	pointsClient  pb.PointsClient
	collectClient pb.CollectionsClient
	alias         string
	vectorDim     int
}

// NewQdrantIndex connects to Qdrant. Supports both local instances
// (insecure) and Qdrant Cloud (TLS + API key).
func NewQdrantIndex(cfg *QdrantConfig) (*QdrantIndex, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDim := cfg.VectorDim
	if vectorDim <= 0 {
		vectorDim = DefaultVectorDim
	}

	var opts []grpc.DialOption
	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantIndex{
		conn:          conn,
		pointsClient:  pb.NewPointsClient(conn),
		collectClient: pb.NewCollectionsClient(conn),
		alias:         cfg.Alias,
		vectorDim:     vectorDim,
	}, nil
}

// Close closes the gRPC connection.
func (x *QdrantIndex) Close() error {
	return x.conn.Close()
}

// EnsureCollection bootstraps the alias on first run: if the alias does not
// resolve yet, a fresh collection is created and the alias pointed at it.
func (x *QdrantIndex) EnsureCollection(ctx context.Context) error {
	target, err := x.aliasTarget(ctx)
	if err != nil {
		return err
	}
	if target != "" {
		return nil
	}

	name := x.versionedName()
	if err := x.createCollection(ctx, name); err != nil {
		return err
	}
	_, err = x.collectClient.UpdateAliases(ctx, &pb.ChangeAliases{
		Actions: []*pb.AliasOperations{
			{Action: &pb.AliasOperations_CreateAlias{
				CreateAlias: &pb.CreateAlias{CollectionName: name, AliasName: x.alias},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create alias: %w", err)
	}
	return nil
}

func (x *QdrantIndex) versionedName() string {
	return fmt.Sprintf("%s-%d", x.alias, time.Now().UnixNano())
}

func (x *QdrantIndex) aliasTarget(ctx context.Context) (string, error) {
	resp, err := x.collectClient.ListAliases(ctx, &pb.ListAliasesRequest{})
	if err != nil {
		return "", fmt.Errorf("failed to list aliases: %w", err)
	}
	for _, alias := range resp.GetAliases() {
		if alias.GetAliasName() == x.alias {
			return alias.GetCollectionName(), nil
		}
	}
	return "", nil
}

func (x *QdrantIndex) createCollection(ctx context.Context, name string) error {
	_, err := x.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(x.vectorDim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

// Upsert writes one document with create-or-replace semantics, so a retried
// upsert after a crash is safe.
func (x *QdrantIndex) Upsert(ctx context.Context, doc *Document, vector []float32) error {
	return x.upsertInto(ctx, x.alias, doc, vector)
}

func (x *QdrantIndex) upsertInto(ctx context.Context, collection string, doc *Document, vector []float32) error {
	uid, err := uuid.Parse(doc.ProductID)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}

	points := []*pb.PointStruct{
		{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vector},
				},
			},
			Payload: doc.payload(),
		},
	}

	_, err = x.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

// Remove deletes the document for a product. Deleting an absent point
// succeeds, which keeps retried removals harmless.
func (x *QdrantIndex) Remove(ctx context.Context, productID string) error {
	uid, err := uuid.Parse(productID)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}

	_, err = x.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: x.alias,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{
						{PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}
	return nil
}

// Search ranks documents by cosine score, scoped to one store and optionally
// one category.
func (x *QdrantIndex) Search(ctx context.Context, vector []float32, storeID, categoryID string, limit, offset int) ([]Hit, error) {
	req := &pb.SearchPoints{
		CollectionName: x.alias,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		Filter: buildFilter(storeID, categoryID),
	}
	if offset > 0 {
		o := uint64(offset)
		req.Offset = &o
	}

	resp, err := x.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, scored := range resp.GetResult() {
		doc := parsePayload(scored.GetPayload())
		if doc == nil || doc.ProductID == "" {
			continue
		}
		hits = append(hits, Hit{ProductID: doc.ProductID, Score: scored.GetScore()})
	}
	return hits, nil
}

func buildFilter(storeID, categoryID string) *pb.Filter {
	conditions := []*pb.Condition{
		{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "store_id",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: storeID},
					},
				},
			},
		},
	}
	if categoryID != "" {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "category_id",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: categoryID},
					},
				},
			},
		})
	}
	return &pb.Filter{Must: conditions}
}

// CreateStaging creates an empty, uniquely named collection for a rebuild.
// It is invisible to queries until PromoteStaging repoints the alias.
func (x *QdrantIndex) CreateStaging(ctx context.Context) (string, error) {
	name := x.versionedName()
	if err := x.createCollection(ctx, name); err != nil {
		return "", err
	}
	return name, nil
}

// BulkUpsert loads one rebuild batch into the staging collection.
func (x *QdrantIndex) BulkUpsert(ctx context.Context, collection string, docs []*Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("document/vector count mismatch: %d != %d", len(docs), len(vectors))
	}
	points := make([]*pb.PointStruct, 0, len(docs))
	for i, doc := range docs {
		uid, err := uuid.Parse(doc.ProductID)
		if err != nil {
			return fmt.Errorf("invalid point ID: %w", err)
		}
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vectors[i]},
				},
			},
			Payload: doc.payload(),
		})
	}

	_, err := x.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to bulk upsert: %w", err)
	}
	return nil
}

// PromoteStaging atomically repoints the alias from the live collection to
// the fully loaded staging collection, then drops the old one. The swap is a
// single alias change request; queries observe either the old index or the
// new one, never an empty window.
func (x *QdrantIndex) PromoteStaging(ctx context.Context, staging string) error {
	old, err := x.aliasTarget(ctx)
	if err != nil {
		return err
	}

	actions := []*pb.AliasOperations{}
	if old != "" {
		actions = append(actions, &pb.AliasOperations{
			Action: &pb.AliasOperations_DeleteAlias{
				DeleteAlias: &pb.DeleteAlias{AliasName: x.alias},
			},
		})
	}
	actions = append(actions, &pb.AliasOperations{
		Action: &pb.AliasOperations_CreateAlias{
			CreateAlias: &pb.CreateAlias{CollectionName: staging, AliasName: x.alias},
		},
	})

	if _, err := x.collectClient.UpdateAliases(ctx, &pb.ChangeAliases{Actions: actions}); err != nil {
		return fmt.Errorf("failed to repoint alias: %w", err)
	}

	if old != "" && old != staging {
		if err := x.DropCollection(ctx, old); err != nil {
			// The swap already succeeded; a leaked old collection is a
			// cleanup problem, not a correctness one.
			return nil
		}
	}
	return nil
}

// DropCollection deletes a collection outright. Used to discard a staging
// collection after a failed rebuild and to reap the old live collection
// after a swap.
func (x *QdrantIndex) DropCollection(ctx context.Context, name string) error {
	_, err := x.collectClient.Delete(ctx, &pb.DeleteCollection{CollectionName: name})
	if err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	return nil
}
