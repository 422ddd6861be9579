package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/riskpilot/internal/logger"
	"github.com/ppiankov/riskpilot/internal/model"
)

// Index is the per-program vector store used for retrieval augmentation.
// Each program has its own RWMutex: one writer or many readers, and no lock
// is ever shared between programs.
type Index struct {
	embedder Embedder
	store    *snapshotStore // nil keeps everything in memory
	minScore float64
	log      logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	programs map[string]*programIndex
}

type programIndex struct {
	mu       sync.RWMutex
	loaded   bool
	seq      uint64
	segments map[string]model.Segment
}

// Stats describes one program's index
type Stats struct {
	ProgramID string `json:"program_id"`
	Segments  int    `json:"segments"`
	Inputs    int    `json:"inputs"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model"`
}

// Options configures an Index
type Options struct {
	Dir      string // snapshot directory; empty disables persistence
	MinScore float64
	Logger   logger.Logger
}

// New creates an index over embedder
func New(embedder Embedder, opts Options) *Index {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	idx := &Index{
		embedder: embedder,
		minScore: opts.MinScore,
		log:      log.With("component", "index"),
		now:      time.Now,
		programs: make(map[string]*programIndex),
	}
	if opts.Dir != "" {
		idx.store = &snapshotStore{dir: opts.Dir}
	}
	return idx
}

// program returns the registry entry for programID, creating it on first use
func (x *Index) program(programID string) *programIndex {
	x.mu.Lock()
	defer x.mu.Unlock()
	p, ok := x.programs[programID]
	if !ok {
		p = &programIndex{segments: make(map[string]model.Segment)}
		x.programs[programID] = p
	}
	return p
}

// loadLocked reads the snapshot once. Caller holds p.mu for writing.
func (x *Index) loadLocked(programID string, p *programIndex) error {
	if p.loaded {
		return nil
	}
	p.loaded = true
	if x.store == nil {
		return nil
	}
	snap, err := x.store.load(programID)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	if snap.Model != x.embedder.Model() {
		x.log.Warn("Snapshot built with a different embedding model, ignoring it until reindex",
			"program", programID, "snapshot_model", snap.Model, "model", x.embedder.Model())
		return nil
	}
	for _, s := range snap.Segments {
		p.segments[s.ID] = s
		if s.Seq > p.seq {
			p.seq = s.Seq
		}
	}
	return nil
}

func (x *Index) ensureLoaded(programID string, p *programIndex) error {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if loaded {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return x.loadLocked(programID, p)
}

// Insert embeds and stores segments. A segment ID that already exists is
// replaced, never duplicated. Embedding runs before the write lock is taken.
func (x *Index) Insert(ctx context.Context, programID string, segments []model.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	embedded, err := x.embed(ctx, segments)
	if err != nil {
		return err
	}

	p := x.program(programID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := x.loadLocked(programID, p); err != nil {
		return err
	}
	x.putLocked(programID, p, embedded)
	return x.persistLocked(programID, p)
}

// Retrieve returns up to k segments most similar to query, best first.
// Equal scores favor the most recently inserted segment. A program with
// nothing indexed yields an empty result.
func (x *Index) Retrieve(ctx context.Context, programID, query string, k int) ([]model.ScoredSegment, error) {
	if k <= 0 {
		return []model.ScoredSegment{}, nil
	}
	p := x.program(programID)
	if err := x.ensureLoaded(programID, p); err != nil {
		return nil, err
	}

	p.mu.RLock()
	empty := len(p.segments) == 0
	p.mu.RUnlock()
	if empty {
		return []model.ScoredSegment{}, nil
	}

	vecs, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", asUnavailable(err))
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: %w", model.ErrEmbeddingUnavailable)
	}
	qv := vecs[0]

	p.mu.RLock()
	candidates := make([]model.ScoredSegment, 0, len(p.segments))
	for _, s := range p.segments {
		score := cosineSimilarity(s.Embedding, qv)
		if score < x.minScore {
			continue
		}
		candidates = append(candidates, model.ScoredSegment{Segment: s, Score: score})
	}
	p.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Seq != b.Seq {
			return a.Seq > b.Seq
		}
		return a.ID < b.ID
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// Reindex discards the program's index and rebuilds it from inputs.
// The write lock is held for the whole rebuild, so readers see either the
// old index or the new one.
func (x *Index) Reindex(ctx context.Context, programID string, inputs []model.NormalizedInput) error {
	p := x.program(programID)
	p.mu.Lock()
	defer p.mu.Unlock()

	var segments []model.Segment
	for _, in := range inputs {
		in.ProgramID = programID
		segments = append(segments, model.SegmentsOf(in)...)
	}
	embedded, err := x.embed(ctx, segments)
	if err != nil {
		return err
	}

	p.loaded = true
	p.seq = 0
	p.segments = make(map[string]model.Segment, len(embedded))
	x.putLocked(programID, p, embedded)
	x.log.Info("Reindexed program", "program", programID, "inputs", len(inputs), "segments", len(embedded))
	return x.persistLocked(programID, p)
}

// Clear drops every segment of the program, including its snapshot
func (x *Index) Clear(ctx context.Context, programID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := x.program(programID)
	p.mu.Lock()
	defer p.mu.Unlock()

	p.loaded = true
	p.seq = 0
	p.segments = make(map[string]model.Segment)
	if x.store != nil {
		if err := x.store.remove(programID); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports segment and input counts for the program
func (x *Index) Stats(programID string) (Stats, error) {
	p := x.program(programID)
	if err := x.ensureLoaded(programID, p); err != nil {
		return Stats{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Stats{ProgramID: programID, Segments: len(p.segments), Model: x.embedder.Model()}
	inputs := make(map[string]struct{})
	for _, s := range p.segments {
		inputs[s.SourceInputID] = struct{}{}
		if st.Dimension == 0 {
			st.Dimension = len(s.Embedding)
		}
	}
	st.Inputs = len(inputs)
	return st, nil
}

// embed fills Embedding on copies of segments
func (x *Index) embed(ctx context.Context, segments []model.Segment) ([]model.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, nil
	}
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	vecs, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed segments: %w", asUnavailable(err))
	}
	if len(vecs) != len(segments) {
		return nil, fmt.Errorf("embed segments: %w: got %d vectors for %d segments",
			model.ErrEmbeddingUnavailable, len(vecs), len(segments))
	}
	out := make([]model.Segment, len(segments))
	for i, s := range segments {
		s.Embedding = vecs[i]
		out[i] = s
	}
	return out, nil
}

// putLocked assigns insertion sequence numbers and replaces by ID
func (x *Index) putLocked(programID string, p *programIndex, segments []model.Segment) {
	now := x.now().UTC()
	for _, s := range segments {
		p.seq++
		s.ProgramID = programID
		s.Seq = p.seq
		s.InsertedAt = now
		p.segments[s.ID] = s
	}
}

func (x *Index) persistLocked(programID string, p *programIndex) error {
	if x.store == nil {
		return nil
	}
	segs := make([]model.Segment, 0, len(p.segments))
	for _, s := range p.segments {
		segs = append(segs, s)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].Seq < segs[j].Seq })
	return x.store.save(snapshot{ProgramID: programID, Model: x.embedder.Model(), Segments: segs})
}

// asUnavailable keeps context cancellation distinct from backend failure
func asUnavailable(err error) error {
	if errors.Is(err, model.ErrEmbeddingUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrEmbeddingUnavailable, err)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
