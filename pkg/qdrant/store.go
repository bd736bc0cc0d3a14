// Package qdrant 提供了基于 Qdrant gRPC 接口的向量索引。
package qdrant

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/pkg/log"
)

const (
	payloadText     = "text"
	payloadChunkUID = "chunk_uid"
)

// Store 持有 Qdrant 的 gRPC 连接以及一个集合。
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	addr        string
}

// New 连接 Qdrant 并确保集合存在。
func New(ctx context.Context, cfg config.QdrantConfig, dims int) (*Store, error) {
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", cfg.Addr, err)
	}
	s := &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  cfg.Collection,
		addr:        cfg.Addr,
	}
	if err := s.ensureCollection(ctx, dims); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) Name() string     { return s.collection }
func (s *Store) Location() string { return s.addr }

func (s *Store) ensureCollection(ctx context.Context, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			log.Infof("Qdrant 集合 '%s' 已存在", s.collection)
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	log.Infof("Qdrant 集合 '%s' 创建成功, dims: %d", s.collection, dims)
	return nil
}

// PointID 把 32 位十六进制的分块 ID 转成 Qdrant 接受的 UUID。
func PointID(chunkID string) string {
	raw, err := hex.DecodeString(chunkID)
	if err == nil && len(raw) == 16 {
		if id, err := uuid.FromBytes(raw); err == nil {
			return id.String()
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

// Upsert 写入记录，原始分块 ID 保存在 payload 中。
func (s *Store) Upsert(ctx context.Context, records []model.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := make(map[string]*pb.Value, len(r.Metadata)+2)
		for k, v := range r.Metadata {
			payload[k] = toValue(v)
		}
		payload[payloadText] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.Text}}
		payload[payloadChunkUID] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.ID}}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(records), err)
	}
	return nil
}

// Query 执行相似度检索，Qdrant 的 cosine 分数即相似度。
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter model.Metadata) ([]model.IndexHit, error) {
	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         buildFilter(filter),
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]model.IndexHit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		hit := model.IndexHit{
			ID:       r.GetId().GetUuid(),
			Distance: 1 - float64(r.GetScore()),
			Metadata: model.Metadata{},
		}
		for k, val := range r.GetPayload() {
			switch k {
			case payloadText:
				hit.Text = val.GetStringValue()
			case payloadChunkUID:
				hit.ID = val.GetStringValue()
			default:
				if v, ok := fromValue(val); ok {
					hit.Metadata[k] = v
				}
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count 返回集合中的点数量。
func (s *Store) Count(ctx context.Context) (int64, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return int64(resp.GetResult().GetCount()), nil
}

func buildFilter(filter model.Metadata) *pb.Filter {
	if len(filter) == 0 {
		return nil
	}
	must := make([]*pb.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, fieldMatch(k, v))
	}
	return &pb.Filter{Must: must}
}

func fieldMatch(key string, v model.MetaValue) *pb.Condition {
	field := &pb.FieldCondition{Key: key}
	switch v.Kind() {
	case model.MetaInt:
		i, _ := v.Int()
		field.Match = &pb.Match{MatchValue: &pb.Match_Integer{Integer: i}}
	case model.MetaBool:
		field.Match = &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: v.Interface().(bool)}}
	case model.MetaFloat:
		f := v.Interface().(float64)
		field.Range = &pb.Range{Gte: &f, Lte: &f}
	default:
		field.Match = &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v.String()}}
	}
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: field}}
}

func toValue(v model.MetaValue) *pb.Value {
	switch x := v.Interface().(type) {
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: x}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: x}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: x}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v.String()}}
	}
}

func fromValue(val *pb.Value) (model.MetaValue, bool) {
	switch k := val.GetKind().(type) {
	case *pb.Value_StringValue:
		return model.StringValue(k.StringValue), true
	case *pb.Value_IntegerValue:
		return model.IntValue(k.IntegerValue), true
	case *pb.Value_DoubleValue:
		return model.FloatValue(k.DoubleValue), true
	case *pb.Value_BoolValue:
		return model.BoolValue(k.BoolValue), true
	}
	return model.MetaValue{}, false
}
