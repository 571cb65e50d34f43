package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"

	"campaign-forge-api/internal/workflow/port"
)

const (
	defaultChunkSizeRunes    = 800
	defaultChunkOverlapRunes = 80
	defaultEmbeddingBatch    = 32
	defaultMaxJSONLeaves     = 400
)

// Indexer 把来源文档与已采纳的战役实体写入向量库。
// 同一 doc 重新入库前先删除旧片段。
type Indexer struct {
	embedder embedding.Embedder
	vector   VectorRepository

	embeddingBatchSize int
	chunkSizeRunes     int
	chunkOverlapRunes  int
}

func NewIndexer(embedder embedding.Embedder, vectorRepo VectorRepository, embeddingBatchSize int) *Indexer {
	bs := embeddingBatchSize
	if bs <= 0 {
		bs = defaultEmbeddingBatch
	}
	return &Indexer{
		embedder:           embedder,
		vector:             vectorRepo,
		embeddingBatchSize: bs,
		chunkSizeRunes:     defaultChunkSizeRunes,
		chunkOverlapRunes:  defaultChunkOverlapRunes,
	}
}

func (i *Indexer) Enabled() bool {
	return i != nil && i.embedder != nil && i.vector != nil
}

// IndexDocument 入库一份规则书/小说等来源文档
func (i *Indexer) IndexDocument(ctx context.Context, doc *SourceDocument) (*IndexStats, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}
	docID := strings.TrimSpace(doc.SourceID)
	if docID == "" {
		return nil, fmt.Errorf("source_id is required")
	}
	if doc.Scope == "" {
		return nil, fmt.Errorf("%w: scope is required", ErrInvalidScope)
	}
	if err := validScope(doc.Scope); err != nil {
		return nil, err
	}

	var (
		texts    []string
		passages []*VectorPassage
	)
	for _, sec := range doc.Sections {
		var page *int
		if sec.Page > 0 {
			p := sec.Page
			page = &p
		}
		for _, chunk := range splitByRunes(sec.Text, i.chunkSizeRunes, i.chunkOverlapRunes) {
			embedText := chunk
			if t := strings.TrimSpace(sec.Title); t != "" {
				embedText = t + "\n" + chunk
			}
			texts = append(texts, embedText)
			passages = append(passages, &VectorPassage{
				ID:         uuid.NewString(),
				DocID:      docID,
				Scope:      doc.Scope,
				Content:    chunk,
				GameSystem: strings.TrimSpace(doc.GameSystem),
				Setting:    strings.TrimSpace(doc.Setting),
				Source: port.SourceMetadata{
					SourceID:   docID,
					SourceName: strings.TrimSpace(doc.SourceName),
					SourceType: strings.TrimSpace(doc.SourceType),
					Page:       page,
					Section:    strings.TrimSpace(sec.Title),
					ChunkType:  strings.TrimSpace(sec.ChunkType),
					Title:      strings.TrimSpace(sec.Title),
				},
			})
		}
	}

	if err := i.replace(ctx, doc.Scope, docID, texts, passages); err != nil {
		return nil, err
	}
	return &IndexStats{DocID: docID, Passages: len(passages)}, nil
}

// IndexEntity 把已采纳的战役实体写入 campaign 范围，JSON 每个叶子字段独立成片段
func (i *Indexer) IndexEntity(ctx context.Context, campaignID, entityID, entityType, name string, data json.RawMessage) (*IndexStats, error) {
	campaignID = strings.TrimSpace(campaignID)
	entityID = strings.TrimSpace(entityID)
	if campaignID == "" || entityID == "" {
		return nil, fmt.Errorf("campaign_id and entity_id are required")
	}

	var leaves []jsonLeaf
	if len(data) > 0 {
		var obj any
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("invalid entity json: %w", err)
		}
		collectJSONLeaves(obj, "", &leaves, defaultMaxJSONLeaves)
	}

	var (
		texts    []string
		passages []*VectorPassage
	)
	for _, leaf := range leaves {
		for _, chunk := range splitByRunes(leaf.Text, i.chunkSizeRunes, i.chunkOverlapRunes) {
			texts = append(texts, fmt.Sprintf("%s %s\n%s: %s", entityType, name, leaf.Path, chunk))
			passages = append(passages, &VectorPassage{
				ID:      uuid.NewString(),
				DocID:   entityID,
				Scope:   port.ScopeCampaign,
				Content: chunk,
				Source: port.SourceMetadata{
					SourceID:   entityID,
					SourceName: name,
					SourceType: "campaign_entity",
					Section:    leaf.Path,
					ChunkType:  entityType,
					Title:      name,
					CampaignID: campaignID,
				},
			})
		}
	}

	if err := i.replace(ctx, port.ScopeCampaign, entityID, texts, passages); err != nil {
		return nil, err
	}
	return &IndexStats{DocID: entityID, Passages: len(passages)}, nil
}

func (i *Indexer) replace(ctx context.Context, scope port.SearchScope, docID string, texts []string, passages []*VectorPassage) error {
	if !i.Enabled() {
		return ErrVectorDisabled
	}
	if err := i.vector.EnsurePassagesCollection(ctx); err != nil {
		return err
	}
	if err := i.vector.DeletePassagesByDoc(ctx, scope, docID); err != nil {
		return err
	}
	if len(passages) == 0 {
		return nil
	}

	vectors, err := i.embedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(passages) {
		return fmt.Errorf("embedding count mismatch: got %d want %d", len(vectors), len(passages))
	}
	for idx := range passages {
		passages[idx].Vector = vectors[idx]
	}
	return i.vector.InsertPassages(ctx, passages)
}

type jsonLeaf struct {
	Path string
	Text string
}

func collectJSONLeaves(v any, path string, out *[]jsonLeaf, limit int) {
	if out == nil {
		return
	}
	if limit > 0 && len(*out) >= limit {
		return
	}

	switch vv := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectJSONLeaves(vv[k], joinPath(path, k), out, limit)
			if limit > 0 && len(*out) >= limit {
				return
			}
		}
	case []any:
		for idx := range vv {
			collectJSONLeaves(vv[idx], joinPath(path, strconv.Itoa(idx)), out, limit)
			if limit > 0 && len(*out) >= limit {
				return
			}
		}
	case string:
		if s := strings.TrimSpace(vv); s != "" {
			*out = append(*out, jsonLeaf{Path: normalizePath(path), Text: s})
		}
	case float64, bool:
		// 孤立的标量没有字段名，检索价值低
		if strings.TrimSpace(path) == "" {
			return
		}
		b, _ := json.Marshal(vv)
		*out = append(*out, jsonLeaf{Path: normalizePath(path), Text: string(b)})
	}
}

func joinPath(base, token string) string {
	if strings.TrimSpace(base) == "" {
		return token
	}
	return base + "." + token
}

func normalizePath(p string) string {
	if strings.TrimSpace(p) == "" {
		return "value"
	}
	return p
}

func (i *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += i.embeddingBatchSize {
		end := start + i.embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		v64, err := i.embedder.EmbedStrings(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed passages: %w", err)
		}
		for _, vec := range v64 {
			out = append(out, toFloat32(vec))
		}
	}
	return out, nil
}
