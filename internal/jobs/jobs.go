// Package jobs renders transitions in the background: it loads songs, runs
// the transition builder, writes the output and records the outcome.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/catalog"
	"github.com/satindergrewal/segue/internal/transition"
)

// ErrQueueFull is returned by Submit when the backlog is exhausted.
var ErrQueueFull = errors.New("job queue is full")

// Config holds queue parameters.
type Config struct {
	Workers   int    // concurrent builds
	Backlog   int    // queued jobs waiting for a worker
	OutputDir string // empty keeps renders in memory only
}

// Request asks for one transition render.
type Request struct {
	FromSongID  string            `json:"from_song_id"`
	ToSongID    string            `json:"to_song_id"`
	FromSection int               `json:"from_section"`
	ToSection   int               `json:"to_section"`
	Params      transition.Params `json:"params"`
	// FullSong wraps the transition with the rest of both songs.
	FullSong bool `json:"full_song"`
}

// Store persists job records. *catalog.Catalog implements it.
type Store interface {
	SaveTransition(t *catalog.Transition) error
}

// Previewer receives finished renders for live audition. *audio.Player
// implements it.
type Previewer interface {
	Enqueue(pv audio.Preview) bool
}

// Output is a finished render.
type Output struct {
	ID       string
	Result   *transition.Result
	Assembly *transition.Assembly // set for full-song renders
	Buffer   *audio.Buffer        // what was written: the transition or the assembly
	Path     string
	Metadata transition.Metadata
}

// Queue runs render jobs on a fixed pool of workers.
type Queue struct {
	cfg     Config
	loader  Loader
	store   Store
	preview Previewer
	builder *transition.Builder
	log     logging.LeveledLogger

	mu      sync.RWMutex
	jobs    map[string]*catalog.Transition
	order   []string
	pending chan string
}

// NewQueue creates a queue. store may be nil.
func NewQueue(cfg Config, loader Loader, store Store, factory logging.LoggerFactory) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = 64
	}
	return &Queue{
		cfg:     cfg,
		loader:  loader,
		store:   store,
		builder: transition.NewBuilder(factory.NewLogger("transition")),
		log:     factory.NewLogger("jobs"),
		jobs:    make(map[string]*catalog.Transition),
		pending: make(chan string, cfg.Backlog),
	}
}

// SetPreviewer routes finished renders to p. Pass nil to disable.
func (q *Queue) SetPreviewer(p Previewer) {
	q.mu.Lock()
	q.preview = p
	q.mu.Unlock()
}

// Submit validates req and queues it. The returned record has status
// queued; an invalid spec is rejected here rather than by a worker.
func (q *Queue) Submit(req Request) (catalog.Transition, error) {
	if req.FromSongID == "" || req.ToSongID == "" {
		return catalog.Transition{}, errors.New("from_song_id and to_song_id are required")
	}
	if _, err := req.Params.Spec(); err != nil {
		return catalog.Transition{}, err
	}

	now := time.Now()
	rec := &catalog.Transition{
		ID:          uuid.NewString(),
		FromSongID:  req.FromSongID,
		ToSongID:    req.ToSongID,
		FromSection: req.FromSection,
		ToSection:   req.ToSection,
		FullSong:    req.FullSong,
		Params:      req.Params,
		Status:      catalog.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Registered and stored before it is queued so a worker always finds it
	// and its later updates are never overwritten by this one.
	q.mu.Lock()
	q.jobs[rec.ID] = rec
	q.order = append(q.order, rec.ID)
	snapshot := *rec
	q.mu.Unlock()
	q.persist(&snapshot)

	select {
	case q.pending <- rec.ID:
	default:
		q.fail(rec.ID, ErrQueueFull)
		return catalog.Transition{}, ErrQueueFull
	}

	q.log.Infof("Queued transition %s: %s[%d] -> %s[%d] (%s)",
		rec.ID, req.FromSongID, req.FromSection, req.ToSongID, req.ToSection, req.Params.Type)
	return *rec, nil
}

// Status returns a snapshot of one job.
func (q *Queue) Status(id string) (catalog.Transition, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	rec, ok := q.jobs[id]
	if !ok {
		return catalog.Transition{}, false
	}
	return *rec, true
}

// List returns snapshots of every job in submission order.
func (q *Queue) List() []catalog.Transition {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]catalog.Transition, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.jobs[id])
	}
	return out
}

// Pending returns the number of jobs waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.pending)
}

// Run starts the workers. Blocks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	q.log.Infof("Job queue started with %d workers", q.cfg.Workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		g.Go(func() error {
			q.worker(ctx, i)
			return nil
		})
	}
	return g.Wait()
}

func (q *Queue) worker(ctx context.Context, n int) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.pending:
			q.log.Debugf("worker %d picked %s", n, id)
			q.process(ctx, id)
		}
	}
}

func (q *Queue) process(ctx context.Context, id string) {
	req, ok := q.start(id)
	if !ok {
		return
	}

	started := time.Now()
	out, err := q.Render(ctx, id, req)
	if err != nil {
		q.fail(id, err)
		return
	}

	q.update(id, func(rec *catalog.Transition) {
		rec.Status = catalog.StatusDone
		rec.OutputPath = out.Path
		rec.DurationMs = int(out.Buffer.Duration() * 1000)
		rec.Metadata = out.Metadata
	})
	q.log.Infof("Transition %s done in %s: %.2fs of audio",
		id, time.Since(started).Round(time.Millisecond), out.Buffer.Duration())

	q.mu.RLock()
	p := q.preview
	q.mu.RUnlock()
	if p != nil {
		q.enqueuePreview(p, out)
	}
}

// start marks a job running and returns its request.
func (q *Queue) start(id string) (Request, bool) {
	var req Request
	found := q.update(id, func(rec *catalog.Transition) {
		rec.Status = catalog.StatusRunning
		req = Request{
			FromSongID:  rec.FromSongID,
			ToSongID:    rec.ToSongID,
			FromSection: rec.FromSection,
			ToSection:   rec.ToSection,
			Params:      rec.Params,
			FullSong:    rec.FullSong,
		}
	})
	return req, found
}

func (q *Queue) fail(id string, err error) {
	q.update(id, func(rec *catalog.Transition) {
		rec.Status = catalog.StatusFailed
		rec.Error = err.Error()
		var te *transition.Error
		if errors.As(err, &te) {
			rec.ErrorKind = te.Kind.String()
			rec.ErrorStage = te.Stage.String()
		}
	})
	q.log.Warnf("Transition %s failed: %v", id, err)
}

// update applies fn to the job under the lock and persists the result.
func (q *Queue) update(id string, fn func(*catalog.Transition)) bool {
	q.mu.Lock()
	rec, ok := q.jobs[id]
	if ok {
		fn(rec)
		rec.UpdatedAt = time.Now()
	}
	var snapshot catalog.Transition
	if ok {
		snapshot = *rec
	}
	q.mu.Unlock()

	if ok {
		q.persist(&snapshot)
	}
	return ok
}

func (q *Queue) persist(rec *catalog.Transition) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveTransition(rec); err != nil {
		q.log.Errorf("Saving transition %s: %v", rec.ID, err)
	}
}

func (q *Queue) enqueuePreview(p Previewer, out *Output) {
	b, r := out.Buffer, out.Result
	if b.SampleRate != audio.PreviewSampleRate || b.Channels != audio.PreviewChannels {
		q.log.Debugf("Transition %s not previewed: %d Hz/%d ch", out.ID, b.SampleRate, b.Channels)
		return
	}
	info := audio.TrackInfo{
		ID:    out.ID,
		Label: fmt.Sprintf("%v / %s -> %v / %s", r.Metadata["from_song"], r.From.Label, r.Metadata["to_song"], r.To.Label),
		Path:  out.Path,
	}
	if !p.Enqueue(audio.Preview{Info: info, Buffer: b}) {
		q.log.Warnf("Preview queue full, dropping %s", out.ID)
	}
}

// Render runs one request synchronously: load both songs, build, optionally
// assemble, then write <OutputDir>/<id>.wav when an output dir is set.
func (q *Queue) Render(ctx context.Context, id string, req Request) (*Output, error) {
	spec, err := req.Params.Spec()
	if err != nil {
		return nil, err
	}

	from, to, err := q.loadPair(ctx, req.FromSongID, req.ToSongID)
	if err != nil {
		return nil, err
	}

	res, err := q.builder.Build(transition.Request{
		From:        from,
		To:          to,
		FromSection: req.FromSection,
		ToSection:   req.ToSection,
		Spec:        spec,
	})
	if err != nil {
		return nil, err
	}

	out := &Output{ID: id, Result: res, Buffer: res.Buffer, Metadata: transition.Metadata{}}
	for k, v := range res.Metadata {
		out.Metadata[k] = v
	}
	if req.FullSong {
		asm, err := transition.AssembleSong(from, to, res)
		if err != nil {
			return nil, err
		}
		out.Assembly = asm
		out.Buffer = asm.Buffer
		out.Metadata["assembly"] = asm.Metadata
	}

	peak := audio.Peak(out.Buffer)
	out.Metadata["peak"] = peak
	if peak > 1 {
		q.log.Warnf("Transition %s peaks at %.2f and will clip when encoded", id, peak)
	}

	if q.cfg.OutputDir != "" {
		if err := os.MkdirAll(q.cfg.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output dir: %w", err)
		}
		out.Path = filepath.Join(q.cfg.OutputDir, id+".wav")
		if err := audio.WriteWAV(out.Path, out.Buffer); err != nil {
			return nil, fmt.Errorf("writing %s: %w", out.Path, err)
		}
		if st, err := os.Stat(out.Path); err == nil {
			q.log.Debugf("Wrote %s (%s)", out.Path, humanize.Bytes(uint64(st.Size())))
		}
	}
	return out, nil
}

// loadPair loads both songs concurrently, once when they are the same.
func (q *Queue) loadPair(ctx context.Context, fromID, toID string) (*transition.Song, *transition.Song, error) {
	if fromID == toID {
		s, err := q.loader.Load(ctx, fromID)
		return s, s, err
	}

	var from, to *transition.Song
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		from, err = q.loader.Load(gctx, fromID)
		return err
	})
	g.Go(func() error {
		var err error
		to, err = q.loader.Load(gctx, toID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// BuildAll renders every request with at most Workers in flight and returns
// the outputs in request order. The first failure cancels the rest.
func (q *Queue) BuildAll(ctx context.Context, reqs []Request) ([]*Output, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(q.cfg.Workers)

	results := make([]*Output, len(reqs))
	for i, req := range reqs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			out, err := q.Render(ctx, uuid.NewString(), req)
			if err != nil {
				return fmt.Errorf("request %d (%s -> %s): %w", i, req.FromSongID, req.ToSongID, err)
			}
			results[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
