package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/riskpilot/internal/cache"
	"github.com/ppiankov/riskpilot/internal/model"
	"github.com/ppiankov/riskpilot/internal/util"
)

// Embedder turns texts into fixed-dimension vectors
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the vector space; vectors from different models never mix
	Model() string
}

// NewEmbedder builds the embedder selected by config, wrapped in the embedding cache when enabled
func NewEmbedder(cfg model.EmbeddingConfig, llmCfg model.LLMConfig, cacheCfg model.CacheConfig) (Embedder, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	proxy := util.ProxyConfig{HTTPProxy: llmCfg.HTTPProxy, HTTPSProxy: llmCfg.HTTPSProxy, NoProxy: llmCfg.NoProxy}

	var e Embedder
	switch strings.ToLower(cfg.Provider) {
	case "", "hash":
		return NewHashEmbedder(cfg.Dimension), nil
	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = llmCfg.APIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai embeddings: %w", model.ErrNoCredential)
		}
		e = NewOpenAIEmbedder(apiKey, cfg.BaseURL, cfg.Model, util.NewHTTPClient(timeout, proxy))
	case "ollama":
		e = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, util.NewHTTPClient(timeout, proxy))
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: hash, openai, ollama)", cfg.Provider)
	}

	if cacheCfg.Enabled {
		layered := cache.NewLayeredCache(cacheCfg.MemoryTTL, cacheCfg.Dir, cacheCfg.DiskTTL)
		e = NewCachedEmbedder(e, cache.NewEmbeddings(layered, 0))
	}
	return e, nil
}

// HashEmbedder is a deterministic feature-hashing embedder. It needs no
// network and gives lexical-overlap similarity, which is enough for offline
// runs and tests.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder with dim buckets
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Model() string {
	return fmt.Sprintf("hash-%d", h.dim)
}

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		// High bit picks the sign so unrelated tokens tend to cancel
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedder; baseURL may point at any compatible server
func NewOpenAIEmbedder(apiKey, baseURL, modelName string, httpClient *http.Client) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if modelName == "" {
		modelName = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg), model: modelName}
}

func (o *OpenAIEmbedder) Model() string { return "openai:" + o.model }

func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", model.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openai returned %d vectors for %d texts", model.ErrEmbeddingUnavailable, len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%w: openai vector index %d out of range", model.ErrEmbeddingUnavailable, d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// OllamaEmbedder calls a local Ollama server's /api/embeddings
type OllamaEmbedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllamaEmbedder creates an embedder for a local Ollama server
func NewOllamaEmbedder(baseURL, modelName string, httpClient *http.Client) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "nomic-embed-text"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &OllamaEmbedder{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      modelName,
		httpClient: httpClient,
	}
}

func (o *OllamaEmbedder) Model() string { return "ollama:" + o.model }

// Embed issues one request per text; the endpoint takes a single prompt
func (o *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec, err := o.embedOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (o *OllamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", model.ErrEmbeddingUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", model.ErrEmbeddingUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr ollamaError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%w: ollama (%d): %s", model.ErrEmbeddingUnavailable, resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("%w: ollama (%d): %s", model.ErrEmbeddingUnavailable, resp.StatusCode, string(respBody))
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, errors.New("ollama returned an empty embedding")
	}
	vec := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// CachedEmbedder consults the embedding cache and collapses concurrent
// requests for the same text into one backend call
type CachedEmbedder struct {
	inner Embedder
	cache *cache.Embeddings
	group singleflight.Group
}

// NewCachedEmbedder wraps inner with a cache
func NewCachedEmbedder(inner Embedder, c *cache.Embeddings) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: c}
}

func (c *CachedEmbedder) Model() string { return c.inner.Model() }

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	modelName := c.inner.Model()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if vec, ok := c.cache.Lookup(modelName, t); ok {
			out[i] = vec
			continue
		}
		v, err, _ := c.group.Do(cache.EmbeddingKey(modelName, t), func() (any, error) {
			vecs, err := c.inner.Embed(ctx, []string{t})
			if err != nil {
				return nil, err
			}
			if len(vecs) != 1 {
				return nil, fmt.Errorf("%w: expected 1 vector, got %d", model.ErrEmbeddingUnavailable, len(vecs))
			}
			// A failed cache write only costs a recomputation later
			_ = c.cache.Store(modelName, t, vecs[0])
			return vecs[0], nil
		})
		if err != nil {
			return nil, err
		}
		out[i] = v.([]float32)
	}
	return out, nil
}
