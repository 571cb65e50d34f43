package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"campaign-forge-api/internal/workflow/port"
	"campaign-forge-api/pkg/metrics"
	"campaign-forge-api/pkg/tracer"
)

var retrievalTracer = otel.Tracer("retrieval")

const (
	defaultTopK = 10
	maxTopK     = 50
)

// Engine 基于 Embedder + 向量库的 port.Searcher 实现
type Engine struct {
	embedder embedding.Embedder
	vector   VectorRepository
}

var _ port.Searcher = (*Engine)(nil)

func NewEngine(embedder embedding.Embedder, vectorRepo VectorRepository) *Engine {
	return &Engine{
		embedder: embedder,
		vector:   vectorRepo,
	}
}

func (e *Engine) Enabled() bool {
	return e != nil && e.embedder != nil && e.vector != nil
}

// Search 实现 port.Searcher；结果按置信度降序，同分保持向量库返回顺序
func (e *Engine) Search(ctx context.Context, req port.SearchRequest) (hits []port.SearchHit, err error) {
	scope := string(req.Scope)
	if scope == "" {
		scope = "all"
	}
	ctx, span := retrievalTracer.Start(ctx, "retrieval.Search")
	span.SetAttributes(
		attribute.String("search.scope", scope),
		attribute.Int("search.limit", req.Limit),
	)
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			tracer.RecordError(span, err)
		}
		metrics.SearchDuration.WithLabelValues(scope).Observe(time.Since(start).Seconds())
		metrics.SearchTotal.WithLabelValues(scope, status).Inc()
		span.End()
	}()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if err := validScope(req.Scope); err != nil {
		return nil, err
	}
	if !e.Enabled() {
		return nil, ErrVectorDisabled
	}
	if err := e.vector.EnsurePassagesCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare passages collection: %w", err)
	}

	vec, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	topK := req.Limit
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	results, err := e.vector.SearchPassages(ctx, &VectorSearchParams{
		Scope:       req.Scope,
		Filter:      strings.TrimSpace(req.Filter),
		QueryVector: vec,
		TopK:        topK,
	})
	if err != nil {
		return nil, err
	}

	hits = make([]port.SearchHit, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		hits = append(hits, port.SearchHit{
			ID:         strings.TrimSpace(r.ID),
			Content:    strings.TrimSpace(r.Content),
			Source:     r.Source,
			Confidence: clampScore(float64(r.Score)),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Confidence > hits[j].Confidence })
	span.SetAttributes(attribute.Int("search.hits", len(hits)))
	return hits, nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	v64, err := e.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(v64) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return toFloat32(v64[0]), nil
}

func validScope(s port.SearchScope) error {
	switch s {
	case "", port.ScopeRules, port.ScopeFiction, port.ScopeCampaign:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidScope, s)
	}
}

func clampScore(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, x := range vec {
		out[i] = float32(x)
	}
	return out
}
