package milvus

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultHNSWM              = 16
	defaultHNSWEfConstruction = 200
	defaultSearchEf           = 128
)

// Scopes 集合中预建的分区
var Scopes = []string{"rules", "fiction", "campaign"}

// Repository 来源片段向量仓储
type Repository struct {
	client  *Client
	dim     int
	ensured atomic.Bool
}

// NewRepository 创建向量仓储；dim<=0 时使用 DefaultVectorDimension
func NewRepository(client *Client, dim int) *Repository {
	if dim <= 0 {
		dim = DefaultVectorDimension
	}
	return &Repository{client: client, dim: dim}
}

// SearchParams 检索参数；Scope 为空表示跨全部分区
type SearchParams struct {
	Scope       string
	Filter      string
	QueryVector []float32
	TopK        int
}

// SearchResult 检索结果，Score 为 COSINE 相似度
type SearchResult struct {
	ID         string
	Score      float32
	Content    string
	SourceID   string
	SourceName string
	SourceType string
	CampaignID string
	ChunkType  string
	Section    string
	Title      string
	Page       int64
}

func (r *Repository) configured() error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	return nil
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if err := r.configured(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	schema.CollectionName = r.client.CollectionName(schema.CollectionName)

	if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if err := r.configured(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	m, ef := r.client.config.HNSWM, r.client.config.HNSWEfConstruction
	if m <= 0 {
		m = defaultHNSWM
	}
	if ef <= 0 {
		ef = defaultHNSWEfConstruction
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, m, ef)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := r.client.milvus.CreateIndex(ctx, r.client.CollectionName(collection), fieldVector, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// EnsurePassagesCollection 确保集合、索引、分区可用并已加载。
// 不做 drop/rebuild 等破坏性操作；成功一次后不再访问 Milvus。
func (r *Repository) EnsurePassagesCollection(ctx context.Context) error {
	if err := r.configured(); err != nil {
		return err
	}
	if r.ensured.Load() {
		return nil
	}

	exists, err := r.client.HasCollection(ctx, CollectionSourcePassages)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, SourcePassagesSchema(r.dim)); err != nil {
			return err
		}
		if err := r.CreateIndex(ctx, CollectionSourcePassages); err != nil {
			return err
		}
	}

	collName := r.client.CollectionName(CollectionSourcePassages)
	for _, scope := range Scopes {
		if err := r.ensurePartition(ctx, collName, scope); err != nil {
			return err
		}
	}

	if err := r.client.LoadCollection(ctx, CollectionSourcePassages); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	r.ensured.Store(true)
	return nil
}

func (r *Repository) ensurePartition(ctx context.Context, collName, scope string) error {
	name := PartitionName(scope)
	has, err := r.client.milvus.HasPartition(ctx, collName, name)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if has {
		return nil
	}
	if err := r.client.milvus.CreatePartition(ctx, collName, name); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", name, err)
	}
	return nil
}

// SearchPassages 在指定范围内检索
func (r *Repository) SearchPassages(ctx context.Context, params *SearchParams) ([]*SearchResult, error) {
	if err := r.configured(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchPassages",
		trace.WithAttributes(
			attribute.String("index_scope", params.Scope),
			attribute.Int("top_k", params.TopK),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionSourcePassages)

	var partitions []string
	if params.Scope != "" {
		partitions = []string{PartitionName(params.Scope)}
	}

	ef := r.client.config.SearchEf
	if ef <= 0 {
		ef = defaultSearchEf
	}
	if ef < params.TopK {
		ef = params.TopK
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		partitions,
		strings.TrimSpace(params.Filter),
		outputFields,
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		fieldVector,
		entity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var out []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{Score: result.Scores[i]}
			sr.ID = varcharAt(result.Fields, fieldID, i)
			sr.Content = varcharAt(result.Fields, fieldContent, i)
			sr.SourceID = varcharAt(result.Fields, fieldSourceID, i)
			sr.SourceName = varcharAt(result.Fields, fieldSourceName, i)
			sr.SourceType = varcharAt(result.Fields, fieldSourceType, i)
			sr.CampaignID = varcharAt(result.Fields, fieldCampaignID, i)
			sr.ChunkType = varcharAt(result.Fields, fieldChunkType, i)
			sr.Section = varcharAt(result.Fields, fieldSection, i)
			sr.Title = varcharAt(result.Fields, fieldTitle, i)
			if pageCol, ok := result.Fields.GetColumn(fieldPage).(*entity.ColumnInt64); ok && i < pageCol.Len() {
				sr.Page = pageCol.Data()[i]
			}
			out = append(out, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

func varcharAt(cols client.ResultSet, name string, i int) string {
	col, ok := cols.GetColumn(name).(*entity.ColumnVarChar)
	if !ok || i >= col.Len() {
		return ""
	}
	return col.Data()[i]
}

// InsertPassages 写入同一范围的片段
func (r *Repository) InsertPassages(ctx context.Context, scope string, passages []*SourcePassage) error {
	if err := r.configured(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.InsertPassages",
		trace.WithAttributes(
			attribute.String("index_scope", scope),
			attribute.Int("count", len(passages)),
		))
	defer span.End()

	if len(passages) == 0 {
		return nil
	}

	n := len(passages)
	var (
		ids, scopes, docIDs, sourceIDs, sourceNames = make([]string, n), make([]string, n), make([]string, n), make([]string, n), make([]string, n)
		sourceTypes, systems, settings, campaigns   = make([]string, n), make([]string, n), make([]string, n), make([]string, n)
		chunkTypes, sections, titles, contents      = make([]string, n), make([]string, n), make([]string, n), make([]string, n)
		pages                                       = make([]int64, n)
		vectors                                     = make([][]float32, n)
	)
	for i, p := range passages {
		if len(p.Vector) != r.dim {
			return fmt.Errorf("passage %s vector dimension %d, want %d", p.ID, len(p.Vector), r.dim)
		}
		ids[i] = p.ID
		vectors[i] = p.Vector
		scopes[i] = scope
		docIDs[i] = truncateBytes(p.DocID, 64)
		sourceIDs[i] = truncateBytes(p.SourceID, 64)
		sourceNames[i] = truncateBytes(p.SourceName, 256)
		sourceTypes[i] = truncateBytes(p.SourceType, 32)
		systems[i] = truncateBytes(p.GameSystem, 64)
		settings[i] = truncateBytes(p.Setting, 128)
		campaigns[i] = truncateBytes(p.CampaignID, 64)
		chunkTypes[i] = truncateBytes(p.ChunkType, 32)
		sections[i] = truncateBytes(p.Section, 256)
		titles[i] = truncateBytes(p.Title, 256)
		pages[i] = p.Page
		contents[i] = truncateBytes(p.Content, 65535)
	}

	_, err := r.client.milvus.Insert(ctx,
		r.client.CollectionName(CollectionSourcePassages),
		PartitionName(scope),
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, r.dim, vectors),
		entity.NewColumnVarChar(fieldScope, scopes),
		entity.NewColumnVarChar(fieldDocID, docIDs),
		entity.NewColumnVarChar(fieldSourceID, sourceIDs),
		entity.NewColumnVarChar(fieldSourceName, sourceNames),
		entity.NewColumnVarChar(fieldSourceType, sourceTypes),
		entity.NewColumnVarChar(fieldGameSystem, systems),
		entity.NewColumnVarChar(fieldSetting, settings),
		entity.NewColumnVarChar(fieldCampaignID, campaigns),
		entity.NewColumnVarChar(fieldChunkType, chunkTypes),
		entity.NewColumnVarChar(fieldSection, sections),
		entity.NewColumnVarChar(fieldTitle, titles),
		entity.NewColumnInt64(fieldPage, pages),
		entity.NewColumnVarChar(fieldContent, contents),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert passages: %w", err)
	}
	return nil
}

// DeletePassagesByDoc 删除某个来源文档（或战役实体）在该范围内的全部片段
func (r *Repository) DeletePassagesByDoc(ctx context.Context, scope, docID string) error {
	if err := r.configured(); err != nil {
		return err
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "milvus.DeletePassagesByDoc",
		trace.WithAttributes(
			attribute.String("index_scope", scope),
			attribute.String("doc_id", docID),
		))
	defer span.End()

	filter := fieldDocID + " == " + QuoteString(docID)
	if err := r.client.milvus.Delete(ctx, r.client.CollectionName(CollectionSourcePassages), PartitionName(scope), filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete passages: %w", err)
	}
	return nil
}

// RebuildIndex 重建索引
func (r *Repository) RebuildIndex(ctx context.Context) error {
	if err := r.configured(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.RebuildIndex")
	defer span.End()

	collName := r.client.CollectionName(CollectionSourcePassages)

	if err := r.client.ReleaseCollection(ctx, CollectionSourcePassages); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to release collection: %w", err)
	}
	// 索引不存在时忽略
	_ = r.client.milvus.DropIndex(ctx, collName, fieldVector)

	if err := r.CreateIndex(ctx, CollectionSourcePassages); err != nil {
		return err
	}
	r.ensured.Store(false)
	return r.client.LoadCollection(ctx, CollectionSourcePassages)
}
