// Package embedding 提供 Embedding 服务客户端
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"campaign-forge-api/internal/config"
)

// TEIClient 调用 text-embeddings-inference 风格的 /embed 接口，实现 eino embedding.Embedder
type TEIClient struct {
	endpoint   string
	model      string
	batchSize  int
	httpClient *http.Client
}

var _ embedding.Embedder = (*TEIClient)(nil)

type embedRequest struct {
	Inputs []string `json:"inputs"`
	Model  string   `json:"model,omitempty"`
}

func NewTEIClient(cfg *config.EmbeddingConfig) *TEIClient {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TEIClient{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *TEIClient) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	all := make([][]float64, 0, len(texts))
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vecs, err := c.doBatchEmbed(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-i {
			return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), end-i)
		}
		all = append(all, vecs...)
	}

	return all, nil
}

func (c *TEIClient) doBatchEmbed(ctx context.Context, texts []string) ([][]float64, error) {
	reqBody, err := json.Marshal(&embedRequest{
		Inputs: texts,
		Model:  c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	endpoint := strings.TrimRight(c.endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/embed"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding request failed: status=%d", httpResp.StatusCode)
	}

	var vecs [][]float64
	if err := json.NewDecoder(httpResp.Body).Decode(&vecs); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	return vecs, nil
}
