package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadbit-flash1/251005forms/internal/field"
	"github.com/leadbit-flash1/251005forms/internal/gateway"
	"github.com/leadbit-flash1/251005forms/internal/recorder"
	"github.com/leadbit-flash1/251005forms/internal/resolver"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Run is one fill pass over one page. All exported accessors are safe for
// concurrent use with the executing goroutine.
type Run struct {
	ID string

	page PageSession
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	status   Status
	err      error
	fields   []field.Descriptor
	accepted []resolver.Identified
	done     chan struct{}
}

func newRun(ctx context.Context, page PageSession, opts Options) *Run {
	runCtx, cancel := context.WithCancel(ctx)
	return &Run{
		ID:     uuid.NewString(),
		page:   page,
		opts:   opts,
		ctx:    runCtx,
		cancel: cancel,
		status: StatusRunning,
		done:   make(chan struct{}),
	}
}

// Cancel requests a stop. Idempotent; the run settles to cancelled before
// the next batch boundary or in-flight await completes.
func (r *Run) Cancel() {
	r.cancel()
}

// Wait blocks until the run settles.
func (r *Run) Wait() {
	<-r.done
}

// Done exposes the settle signal for select loops.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Finished reports whether the run has settled.
func (r *Run) Finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Snapshot returns the current status, accepted results, and terminal
// error. The slice is a copy.
func (r *Run) Snapshot() (Status, []resolver.Identified, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]resolver.Identified, len(r.accepted))
	copy(out, r.accepted)
	return r.status, out, r.err
}

// Fields returns the descriptors of the collection pass behind this run.
func (r *Run) Fields() []field.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]field.Descriptor, len(r.fields))
	copy(out, r.fields)
	return out
}

// SetIncluded toggles one accepted entry. Toggling off clears the control
// on the page; toggling back on re-fills it.
func (r *Run) SetIncluded(ctx context.Context, fieldIndex int, included bool) error {
	r.mu.Lock()
	var entry *resolver.Identified
	for i := range r.accepted {
		if r.accepted[i].FieldIndex == fieldIndex {
			entry = &r.accepted[i]
			break
		}
	}
	if entry == nil {
		r.mu.Unlock()
		return fmt.Errorf("no accepted value for field %d", fieldIndex)
	}
	if entry.Included == included {
		r.mu.Unlock()
		return nil
	}
	entry.Included = included
	d := r.fields[fieldIndex]
	value := entry.Value
	r.mu.Unlock()

	if included {
		return r.page.Fill(ctx, d, value)
	}
	return r.page.Clear(ctx, d)
}

func (r *Run) settle(status Status, err error) {
	r.mu.Lock()
	r.status = status
	r.err = err
	r.mu.Unlock()
	data := map[string]interface{}{"status": string(status)}
	if err != nil {
		data["error"] = err.Error()
	}
	r.trace(recorder.EventRunSettled, data)
	r.opts.Trace.Close()
	r.cancel()
	close(r.done)
}

func (r *Run) trace(event string, data interface{}) {
	r.opts.Trace.Log(event, r.ID, data)
}

func (r *Run) cancelled() bool {
	return r.ctx.Err() != nil
}

// execute drives the run: collect, describe, batch, prompt, resolve, fill,
// backfill. Batches are strictly sequential; a batch failure is logged and
// skipped, never fatal, unless it is a credential rejection.
func (r *Run) execute() {
	provider := r.opts.Provider

	if err := r.opts.Trace.Start(r.ID); err != nil {
		log.Printf("[run:%s] trace start: %v", r.ID, err)
	}
	r.trace(recorder.EventRunStarted, map[string]interface{}{
		"batch_size":   r.opts.batchSize(),
		"document_len": len(r.opts.Document),
	})

	caps, err := provider.Capabilities(r.ctx)
	if err != nil {
		r.settle(StatusFailed, classify(err))
		return
	}
	if !caps.Available {
		r.settle(StatusFailed, errors.New("model backend is not available"))
		return
	}

	raws, err := r.page.Collect(r.ctx)
	if err != nil {
		r.settle(StatusFailed, fmt.Errorf("collect fields: %w", err))
		return
	}

	fields := field.DescribeAll(raws)
	res := resolver.New(fields, r.opts.policy())

	r.mu.Lock()
	r.fields = fields
	r.mu.Unlock()

	var fillable []field.Descriptor
	for _, d := range fields {
		if d.Fillable() {
			fillable = append(fillable, d)
		}
	}

	r.trace(recorder.EventFieldsCollected, map[string]interface{}{
		"total":    len(fields),
		"fillable": len(fillable),
	})

	// An empty page is a clean no-op, not an error.
	if len(fillable) == 0 {
		r.settle(StatusDone, nil)
		return
	}

	sessionID, err := provider.CreateSession(r.ctx, r.opts.Session)
	if err != nil {
		r.settle(StatusFailed, classify(err))
		return
	}
	defer func() {
		// Best-effort teardown on a fresh context: the run context is
		// usually cancelled by the time we get here.
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := provider.Destroy(ctx, sessionID); err != nil {
			log.Printf("[run:%s] session destroy: %v", r.ID, err)
		}
	}()

	size := r.opts.batchSize()
	usable := false

	for start := 0; start < len(fillable); start += size {
		if r.cancelled() {
			r.settle(StatusCancelled, nil)
			return
		}

		end := start + size
		if end > len(fillable) {
			end = len(fillable)
		}
		batch := fillable[start:end]

		prompts := make([]field.PromptField, 0, len(batch))
		for _, d := range batch {
			prompts = append(prompts, d.ForPrompt())
		}

		prompt, err := gateway.BuildPrompt(prompts, r.opts.Document)
		if err != nil {
			log.Printf("[run:%s] build prompt for batch %d-%d: %v", r.ID, start, end, err)
			r.trace(recorder.EventBatchFailed, map[string]interface{}{"from": start, "to": end, "error": err.Error()})
			continue
		}

		r.trace(recorder.EventPromptIssued, map[string]interface{}{"from": start, "to": end})
		reply, err := provider.Prompt(r.ctx, sessionID, prompt)
		if err != nil {
			if errors.Is(err, gateway.ErrAuth) {
				r.settle(StatusFailed, classify(err))
				return
			}
			if r.cancelled() {
				r.settle(StatusCancelled, nil)
				return
			}
			log.Printf("[run:%s] batch %d-%d failed: %v", r.ID, start, end, err)
			r.trace(recorder.EventBatchFailed, map[string]interface{}{"from": start, "to": end, "error": err.Error()})
			continue
		}

		suggestions := gateway.ParseSuggestions(reply)
		for _, s := range suggestions {
			id, ok := res.Accept(s)
			if !ok {
				continue
			}
			usable = true
			r.trace(recorder.EventAccepted, map[string]interface{}{"field_index": id.FieldIndex, "key": id.Key})
			if err := r.page.Fill(r.ctx, fields[id.FieldIndex], id.Value); err != nil {
				log.Printf("[run:%s] fill field %d: %v", r.ID, id.FieldIndex, err)
				continue
			}
			r.trace(recorder.EventFilled, map[string]interface{}{"field_index": id.FieldIndex, "key": id.Key})
			r.mu.Lock()
			r.accepted = append(r.accepted, id)
			r.mu.Unlock()
		}
	}

	if r.cancelled() {
		r.settle(StatusCancelled, nil)
		return
	}

	if !usable {
		r.settle(StatusFailed, ErrNoUsableOutput)
		return
	}

	// Policy defaults for roles the model left empty.
	for _, id := range res.Backfill() {
		if err := r.page.Fill(r.ctx, fields[id.FieldIndex], id.Value); err != nil {
			log.Printf("[run:%s] backfill field %d: %v", r.ID, id.FieldIndex, err)
			continue
		}
		r.trace(recorder.EventBackfilled, map[string]interface{}{"field_index": id.FieldIndex, "key": id.Key})
		r.mu.Lock()
		r.accepted = append(r.accepted, id)
		r.mu.Unlock()
	}

	r.settle(StatusDone, nil)
}

// classify maps credential rejections to a stable user-facing message.
func classify(err error) error {
	if errors.Is(err, gateway.ErrAuth) {
		return fmt.Errorf("authentication failed, check the configured API key: %w", err)
	}
	return err
}
