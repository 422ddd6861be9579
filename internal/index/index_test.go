package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/riskpilot/internal/cache"
	"github.com/ppiankov/riskpilot/internal/model"
)

type countingEmbedder struct {
	inner Embedder
	calls atomic.Int64
}

func (c *countingEmbedder) Model() string { return c.inner.Model() }

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return c.inner.Embed(ctx, texts)
}

type failingEmbedder struct{}

func (failingEmbedder) Model() string { return "down" }

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

func seg(inputID string, pos int, text string) model.Segment {
	return model.Segment{ID: model.SegmentID(inputID, pos), SourceInputID: inputID, Text: text, Position: pos}
}

func TestRetrieve_EmptyProgram(t *testing.T) {
	emb := &countingEmbedder{inner: NewHashEmbedder(64)}
	idx := New(emb, Options{})

	got, err := idx.Retrieve(context.Background(), "p1", "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.Zero(t, emb.calls.Load(), "empty program should not embed the query")
}

func TestInsert_ReplacesBySegmentID(t *testing.T) {
	idx := New(NewHashEmbedder(64), Options{})
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, "p1", []model.Segment{seg("in-1", 0, "old text")}))
	require.NoError(t, idx.Insert(ctx, "p1", []model.Segment{seg("in-1", 0, "new text")}))

	st, err := idx.Stats("p1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Segments)
	assert.Equal(t, 1, st.Inputs)
	assert.Equal(t, 64, st.Dimension)

	got, err := idx.Retrieve(ctx, "p1", "new text", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new text", got[0].Text)
}

func TestRetrieve_RanksBySimilarity(t *testing.T) {
	idx := New(NewHashEmbedder(256), Options{MinScore: -1})
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, "p1", []model.Segment{
		seg("in-1", 0, "vendor milestone delayed by staffing"),
		seg("in-1", 1, "budget overrun on cloud spend"),
		seg("in-1", 2, "team morale is good"),
	}))

	got, err := idx.Retrieve(ctx, "p1", "cloud budget overrun", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "budget overrun on cloud spend", got[0].Text)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
}

func TestRetrieve_TiesFavorMostRecent(t *testing.T) {
	idx := New(NewHashEmbedder(64), Options{MinScore: -1})
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, "p1", []model.Segment{seg("in-1", 0, "same words")}))
	require.NoError(t, idx.Insert(ctx, "p1", []model.Segment{seg("in-2", 0, "same words")}))

	got, err := idx.Retrieve(ctx, "p1", "same words", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "in-2", got[0].SourceInputID)
	assert.Greater(t, got[0].Seq, got[1].Seq)
}

func TestRetrieve_MinScoreFilters(t *testing.T) {
	idx := New(NewHashEmbedder(256), Options{MinScore: 0.5})
	ctx := context.Background()
	require.NoError(t, idx.Insert(ctx, "p1", []model.Segment{seg("in-1", 0, "alpha beta gamma")}))

	got, err := idx.Retrieve(ctx, "p1", "unrelated query words", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmbeddingFailure(t *testing.T) {
	idx := New(failingEmbedder{}, Options{})
	err := idx.Insert(context.Background(), "p1", []model.Segment{seg("in-1", 0, "x")})
	assert.ErrorIs(t, err, model.ErrEmbeddingUnavailable)
}

func TestReindexAndClear(t *testing.T) {
	idx := New(NewHashEmbedder(64), Options{MinScore: -1})
	ctx := context.Background()
	require.NoError(t, idx.Insert(ctx, "p1", []model.Segment{seg("stale", 0, "stale text")}))

	inputs := []model.NormalizedInput{
		{InputID: "in-1", Segments: []string{"first", "second"}},
		{InputID: "in-2", Segments: []string{"third"}},
	}
	require.NoError(t, idx.Reindex(ctx, "p1", inputs))

	st, err := idx.Stats("p1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Segments)
	assert.Equal(t, 2, st.Inputs)

	got, err := idx.Retrieve(ctx, "p1", "stale text", 5)
	require.NoError(t, err)
	for _, s := range got {
		assert.NotEqual(t, "stale", s.SourceInputID)
		assert.Equal(t, "p1", s.ProgramID)
	}

	require.NoError(t, idx.Clear(ctx, "p1"))
	st, err = idx.Stats("p1")
	require.NoError(t, err)
	assert.Zero(t, st.Segments)
}

func TestSnapshotPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := New(NewHashEmbedder(64), Options{Dir: dir, MinScore: -1})
	require.NoError(t, first.Insert(ctx, "program/one", []model.Segment{
		seg("in-1", 0, "risk register row"),
		seg("in-1", 1, "another row"),
	}))

	second := New(NewHashEmbedder(64), Options{Dir: dir, MinScore: -1})
	st, err := second.Stats("program/one")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Segments)

	// New inserts continue the sequence instead of restarting it
	require.NoError(t, second.Insert(ctx, "program/one", []model.Segment{seg("in-2", 0, "risk register row")}))
	got, err := second.Retrieve(ctx, "program/one", "risk register row", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "in-2", got[0].SourceInputID)

	// Vectors from another model are not reused
	other := New(NewHashEmbedder(32), Options{Dir: dir})
	st, err = other.Stats("program/one")
	require.NoError(t, err)
	assert.Zero(t, st.Segments)

	require.NoError(t, second.Clear(ctx, "program/one"))
	third := New(NewHashEmbedder(64), Options{Dir: dir})
	st, err = third.Stats("program/one")
	require.NoError(t, err)
	assert.Zero(t, st.Segments)
}

func TestProgramsDoNotShareLocks(t *testing.T) {
	idx := New(NewHashEmbedder(64), Options{MinScore: -1})
	ctx := context.Background()
	require.NoError(t, idx.Insert(ctx, "b", []model.Segment{seg("in-b", 0, "hello")}))

	a := idx.program("a")
	assert.NotSame(t, a, idx.program("b"))
	assert.Same(t, a, idx.program("a"))

	a.mu.Lock()
	defer a.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := idx.Retrieve(ctx, "b", "hello", 1)
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("retrieval on program b blocked behind program a's write lock")
	}
}

func TestConcurrentInsertAndRetrieve(t *testing.T) {
	idx := New(NewHashEmbedder(64), Options{MinScore: -1})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			program := fmt.Sprintf("p%d", i%2)
			assert.NoError(t, idx.Insert(ctx, program, []model.Segment{seg(fmt.Sprintf("in-%d", i), 0, "concurrent text")}))
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := idx.Retrieve(ctx, fmt.Sprintf("p%d", i%2), "concurrent", 3)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := idx.Stats("p0")
	require.NoError(t, err)
	assert.Equal(t, 4, st.Segments)
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(128)
	a, err := e.Embed(context.Background(), []string{"Milestone delayed", ""})
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), []string{"milestone DELAYED"})
	require.NoError(t, err)

	assert.Equal(t, a[0], b[0], "case should not matter")
	assert.InDelta(t, 1.0, cosineSimilarity(a[0], b[0]), 1e-6)
	assert.Zero(t, cosineSimilarity(a[1], a[0]), "empty text has a zero vector")
	assert.Equal(t, "hash-128", e.Model())
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{inner: NewHashEmbedder(16)}
	c := NewCachedEmbedder(inner, cache.NewEmbeddings(cache.NewMemoryCache(time.Minute, time.Minute), 0))

	first, err := c.Embed(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), []string{"two", "one"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), inner.calls.Load())
	assert.Equal(t, first[0], second[1])
	assert.Equal(t, first[1], second[0])
}

func TestOllamaEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt == "broken" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0.5, 0.25}})
	}))
	defer server.Close()

	e := NewOllamaEmbedder(server.URL, "nomic-embed-text", server.Client())
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.5, 0.25}, vecs[1])
	assert.Equal(t, "ollama:nomic-embed-text", e.Model())

	_, err = e.Embed(context.Background(), []string{"broken"})
	assert.ErrorIs(t, err, model.ErrEmbeddingUnavailable)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestOpenAIEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}],
			"usage":{"prompt_tokens":4,"total_tokens":4}}`))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder("test-key", server.URL, "", server.Client())
	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestNewEmbedder(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Cache.Enabled = false

	e, err := NewEmbedder(cfg.Embedding, cfg.LLM, cfg.Cache)
	require.NoError(t, err)
	assert.IsType(t, &HashEmbedder{}, e)

	cfg.Embedding.Provider = "openai"
	_, err = NewEmbedder(cfg.Embedding, cfg.LLM, cfg.Cache)
	assert.ErrorIs(t, err, model.ErrNoCredential)

	cfg.Embedding.Provider = "ollama"
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = t.TempDir()
	e, err = NewEmbedder(cfg.Embedding, cfg.LLM, cfg.Cache)
	require.NoError(t, err)
	assert.IsType(t, &CachedEmbedder{}, e)

	cfg.Embedding.Provider = "word2vec"
	_, err = NewEmbedder(cfg.Embedding, cfg.LLM, cfg.Cache)
	assert.Error(t, err)
}
