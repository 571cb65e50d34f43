package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"campaign-forge-api/internal/config"
)

// NewEinoEmbedder 按 provider 创建 Embedder；默认走 OpenAI 兼容接口
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "tei":
		return NewTEIClient(cfg), nil
	case "", "openai":
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	var dims *int
	if cfg.Dimension > 0 {
		d := cfg.Dimension
		dims = &d
	}
	embedder, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.Endpoint,
		Model:      cfg.Model,
		Dimensions: dims,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}

	return embedder, nil
}
