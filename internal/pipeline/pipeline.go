package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/leadbit-flash1/251005forms/internal/field"
	"github.com/leadbit-flash1/251005forms/internal/gateway"
	"github.com/leadbit-flash1/251005forms/internal/recorder"
	"github.com/leadbit-flash1/251005forms/internal/resolver"
)

// ErrNoUsableOutput is the terminal failure when every batch completed (or
// failed) without a single suggestion surviving parsing and resolution.
var ErrNoUsableOutput = errors.New("pipeline: model returned no usable output")

// ErrRunActive rejects a second concurrent run on the same runner.
var ErrRunActive = errors.New("pipeline: a fill run is already active")

// PageSession is the slice of the browser layer one run needs. The
// sessionID binding happens before the run starts, so the pipeline never
// sees browser session management.
type PageSession interface {
	Collect(ctx context.Context) ([]field.Raw, error)
	Fill(ctx context.Context, d field.Descriptor, value string) error
	Clear(ctx context.Context, d field.Descriptor) error
}

// Options configures one fill run.
type Options struct {
	Provider gateway.Provider
	Session  gateway.SessionOptions
	// Fields per prompt; 24 when zero or negative.
	BatchSize int
	// Select fallback and backfill policy; the built-in table when nil.
	Policy resolver.SelectPolicy
	// Plain-text source document excerpt sent with every prompt.
	Document string
	// Flight recorder for run traces; nil disables tracing.
	Trace *recorder.Recorder
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return 24
	}
	return o.BatchSize
}

func (o Options) policy() resolver.SelectPolicy {
	if o.Policy == nil {
		return resolver.DefaultSelectPolicy()
	}
	return o.Policy
}

// Runner gates fill runs: at most one is active at a time.
type Runner struct {
	mu     sync.Mutex
	active *Run
}

func NewRunner() *Runner {
	return &Runner{}
}

// Start launches a run in the background. It fails fast when another run
// is still active.
func (r *Runner) Start(ctx context.Context, page PageSession, opts Options) (*Run, error) {
	if opts.Provider == nil {
		return nil, errors.New("pipeline: provider is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && !r.active.Finished() {
		return nil, ErrRunActive
	}

	run := newRun(ctx, page, opts)
	r.active = run

	go run.execute()
	return run, nil
}

// Active returns the most recent run, finished or not.
func (r *Runner) Active() (*Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil, false
	}
	return r.active, true
}
