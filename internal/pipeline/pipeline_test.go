package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leadbit-flash1/251005forms/internal/field"
	"github.com/leadbit-flash1/251005forms/internal/gateway"
	"github.com/leadbit-flash1/251005forms/internal/recorder"
)

type fakePage struct {
	mu      sync.Mutex
	raws    []field.Raw
	filled  map[string]string
	cleared []string
	fillErr error
}

func newFakePage(raws []field.Raw) *fakePage {
	return &fakePage{raws: raws, filled: make(map[string]string)}
}

func (p *fakePage) Collect(ctx context.Context) ([]field.Raw, error) {
	return p.raws, nil
}

func (p *fakePage) Fill(ctx context.Context, d field.Descriptor, value string) error {
	if p.fillErr != nil {
		return p.fillErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filled[d.StableKey] = value
	return nil
}

func (p *fakePage) Clear(ctx context.Context, d field.Descriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.filled, d.StableKey)
	p.cleared = append(p.cleared, d.StableKey)
	return nil
}

func (p *fakePage) value(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.filled[key]
	return v, ok
}

type fakeProvider struct {
	mu        sync.Mutex
	replies   []string
	replyErr  error
	capsErr   error
	prompts   []string
	destroyed int
	sessions  int
	// when set, Prompt blocks until the context is cancelled
	blockPrompt bool
}

func (f *fakeProvider) Capabilities(ctx context.Context) (gateway.Capabilities, error) {
	if f.capsErr != nil {
		return gateway.Capabilities{}, f.capsErr
	}
	return gateway.Capabilities{Available: true, Model: "test-model"}, nil
}

func (f *fakeProvider) CreateSession(ctx context.Context, opts gateway.SessionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	return "sess-1", nil
}

func (f *fakeProvider) Prompt(ctx context.Context, sessionID, text string) (string, error) {
	if f.blockPrompt {
		<-ctx.Done()
		return "", ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, text)
	if f.replyErr != nil {
		return "", f.replyErr
	}
	if len(f.replies) == 0 {
		return "[]", nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *fakeProvider) Destroy(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed++
	return nil
}

func (f *fakeProvider) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func applicationRaws() []field.Raw {
	return []field.Raw{
		{Tag: "input", InputType: "text", Name: "first_name", ID: "fn", FormIndex: 0, OrderInForm: 0},
		{Tag: "input", InputType: "text", Name: "last_name", ID: "ln", FormIndex: 0, OrderInForm: 1},
		{Tag: "select", Name: "source", FormIndex: 0, OrderInForm: 2,
			Options: []field.Option{{Value: "", Text: "Pick one"}, {Value: "search_engine", Text: "Search engine"}, {Value: "friend", Text: "Friend"}}},
		{Tag: "input", InputType: "file", Name: "resume", FormIndex: 0, OrderInForm: 3},
	}
}

func TestRunFillsAcceptedSuggestions(t *testing.T) {
	raws := applicationRaws()
	fields := field.DescribeAll(raws)
	page := newFakePage(raws)

	reply := fmt.Sprintf("```json\n[{\"key\":%q,\"value\":\"Merry\",\"confidence\":0.9},{\"key\":%q,\"value\":\"Lamb\"}]\n```",
		fields[0].StableKey, fields[1].StableKey)
	provider := &fakeProvider{replies: []string{reply}}

	runner := NewRunner()
	run, err := runner.Start(context.Background(), page, Options{Provider: provider})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	run.Wait()

	status, accepted, runErr := run.Snapshot()
	if status != StatusDone || runErr != nil {
		t.Fatalf("expected done run, got %s / %v", status, runErr)
	}

	if v, _ := page.value(fields[0].StableKey); v != "Merry" {
		t.Errorf("first_name not filled: %q", v)
	}
	if v, _ := page.value(fields[1].StableKey); v != "Lamb" {
		t.Errorf("last_name not filled: %q", v)
	}

	// The source select had no suggestion; policy backfill picks search_engine.
	if v, _ := page.value(fields[2].StableKey); v != "search_engine" {
		t.Errorf("source not backfilled: %q", v)
	}

	var synthesized int
	for _, id := range accepted {
		if id.Synthesized {
			synthesized++
		}
	}
	if synthesized != 1 {
		t.Errorf("expected 1 synthesized entry, got %d", synthesized)
	}

	if provider.destroyed != 1 {
		t.Errorf("session not destroyed: %d", provider.destroyed)
	}
}

func TestRunExcludesFileFieldsFromPrompts(t *testing.T) {
	raws := applicationRaws()
	page := newFakePage(raws)
	provider := &fakeProvider{}

	runner := NewRunner()
	run, err := runner.Start(context.Background(), page, Options{Provider: provider, BatchSize: 1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	run.Wait()

	// 4 collected fields, one of them a file input: 3 one-field batches.
	if got := provider.promptCount(); got != 3 {
		t.Errorf("expected 3 prompts, got %d", got)
	}
	for _, p := range provider.prompts {
		if strings.Contains(p, `"resume"`) {
			t.Errorf("file field leaked into prompt: %s", p)
		}
	}
}

func TestRunEmptyPageIsNotAnError(t *testing.T) {
	page := newFakePage(nil)
	provider := &fakeProvider{}

	runner := NewRunner()
	run, err := runner.Start(context.Background(), page, Options{Provider: provider})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	run.Wait()

	status, accepted, runErr := run.Snapshot()
	if status != StatusDone || runErr != nil {
		t.Errorf("empty page should settle done: %s / %v", status, runErr)
	}
	if len(accepted) != 0 {
		t.Errorf("expected no results, got %d", len(accepted))
	}
	if provider.sessions != 0 {
		t.Error("no session should be created for an empty page")
	}
}

func TestRunNoUsableOutput(t *testing.T) {
	page := newFakePage(applicationRaws())
	provider := &fakeProvider{replies: []string{"The weather is lovely today."}}

	runner := NewRunner()
	run, err := runner.Start(context.Background(), page, Options{Provider: provider})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	run.Wait()

	status, _, runErr := run.Snapshot()
	if status != StatusFailed {
		t.Fatalf("expected failed run, got %s", status)
	}
	if !errors.Is(runErr, ErrNoUsableOutput) {
		t.Errorf("expected ErrNoUsableOutput, got %v", runErr)
	}
}

func TestRunBatchFailureIsTolerated(t *testing.T) {
	raws := applicationRaws()
	fields := field.DescribeAll(raws)
	page := newFakePage(raws)

	// First batch errors, second succeeds. BatchSize 2 over 3 fillable
	// fields gives two batches.
	provider := &fakeProvider{}
	call := 0
	wrapped := &scriptedProvider{
		fakeProvider: provider,
		prompt: func(ctx context.Context, sessionID, text string) (string, error) {
			call++
			if call == 1 {
				return "", errors.New("transient backend error")
			}
			return fmt.Sprintf("[{\"key\":%q,\"value\":\"search engine\"}]", fields[2].StableKey), nil
		},
	}

	runner := NewRunner()
	run, err := runner.Start(context.Background(), page, Options{Provider: wrapped, BatchSize: 2})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	run.Wait()

	status, _, runErr := run.Snapshot()
	if status != StatusDone || runErr != nil {
		t.Fatalf("batch failure must not fail the run: %s / %v", status, runErr)
	}
	// "search engine" matched the option text; canonical value stored.
	if v, _ := page.value(fields[2].StableKey); v != "search_engine" {
		t.Errorf("second batch not applied: %q", v)
	}
}

func TestRunAuthFailureIsTerminal(t *testing.T) {
	page := newFakePage(applicationRaws())
	provider := &fakeProvider{replyErr: fmt.Errorf("%w: status 401", gateway.ErrAuth)}

	runner := NewRunner()
	run, err := runner.Start(context.Background(), page, Options{Provider: provider})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	run.Wait()

	status, _, runErr := run.Snapshot()
	if status != StatusFailed {
		t.Fatalf("expected failed run, got %s", status)
	}
	if !errors.Is(runErr, gateway.ErrAuth) {
		t.Errorf("expected auth error, got %v", runErr)
	}
	if provider.destroyed != 1 {
		t.Errorf("session should still be destroyed, got %d", provider.destroyed)
	}
}

func TestRunCancellation(t *testing.T) {
	page := newFakePage(applicationRaws())
	provider := &fakeProvider{blockPrompt: true}

	runner := NewRunner()
	run, err := runner.Start(context.Background(), page, Options{Provider: provider})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Let the run reach the blocking prompt, then cancel. Cancel twice to
	// verify idempotence.
	time.Sleep(50 * time.Millisecond)
	run.Cancel()
	run.Cancel()

	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not settle after cancel")
	}

	status, accepted, runErr := run.Snapshot()
	if status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", status)
	}
	if runErr != nil {
		t.Errorf("cancellation is not an error: %v", runErr)
	}
	if len(accepted) != 0 {
		t.Errorf("expected no accepted values, got %d", len(accepted))
	}
}

func TestRunnerGatesConcurrentRuns(t *testing.T) {
	page := newFakePage(applicationRaws())
	provider := &fakeProvider{blockPrompt: true}

	runner := NewRunner()
	run, err := runner.Start(context.Background(), page, Options{Provider: provider})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := runner.Start(context.Background(), page, Options{Provider: provider}); !errors.Is(err, ErrRunActive) {
		t.Errorf("expected ErrRunActive, got %v", err)
	}

	run.Cancel()
	run.Wait()

	// Settled run frees the gate.
	second, err := runner.Start(context.Background(), newFakePage(nil), Options{Provider: &fakeProvider{}})
	if err != nil {
		t.Fatalf("second run after settle: %v", err)
	}
	second.Wait()
}

func TestSetIncludedTogglesPage(t *testing.T) {
	raws := applicationRaws()
	fields := field.DescribeAll(raws)
	page := newFakePage(raws)

	reply := fmt.Sprintf("[{\"key\":%q,\"value\":\"Merry\"}]", fields[0].StableKey)
	provider := &fakeProvider{replies: []string{reply}}

	runner := NewRunner()
	run, err := runner.Start(context.Background(), page, Options{Provider: provider})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	run.Wait()

	ctx := context.Background()

	if err := run.SetIncluded(ctx, fields[0].Index, false); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if _, ok := page.value(fields[0].StableKey); ok {
		t.Error("toggled-off field should be cleared")
	}

	// Toggling off again is a no-op.
	if err := run.SetIncluded(ctx, fields[0].Index, false); err != nil {
		t.Fatalf("repeat toggle: %v", err)
	}
	if len(page.cleared) != 1 {
		t.Errorf("expected exactly one clear, got %d", len(page.cleared))
	}

	if err := run.SetIncluded(ctx, fields[0].Index, true); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if v, _ := page.value(fields[0].StableKey); v != "Merry" {
		t.Errorf("toggled-on field should be re-filled, got %q", v)
	}

	if err := run.SetIncluded(ctx, 99, false); err == nil {
		t.Error("expected error for unknown field index")
	}
}

// scriptedProvider overrides Prompt while inheriting the rest of the fake.
type scriptedProvider struct {
	*fakeProvider
	prompt func(ctx context.Context, sessionID, text string) (string, error)
}

func (s *scriptedProvider) Prompt(ctx context.Context, sessionID, text string) (string, error) {
	return s.prompt(ctx, sessionID, text)
}

func TestRunResumeScenario(t *testing.T) {
	raws := []field.Raw{
		{Tag: "input", InputType: "text", Name: "first_name", FormIndex: 0, OrderInForm: 0},
		{Tag: "input", InputType: "text", Name: "last_name", FormIndex: 0, OrderInForm: 1},
		{Tag: "input", InputType: "email", Name: "email", FormIndex: 0, OrderInForm: 2},
	}
	fields := field.DescribeAll(raws)
	page := newFakePage(raws)

	reply := fmt.Sprintf(`[{"key":%q,"value":"Merry"},{"key":%q,"value":"Christmas"},{"key":%q,"value":"merry@example.com"}]`,
		fields[0].StableKey, fields[1].StableKey, fields[2].StableKey)
	provider := &fakeProvider{replies: []string{reply}}

	runner := NewRunner()
	run, err := runner.Start(context.Background(), page, Options{
		Provider: provider,
		Document: "Mr. Merry Christmas, merry@example.com",
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	run.Wait()

	status, accepted, runErr := run.Snapshot()
	if status != StatusDone || runErr != nil {
		t.Fatalf("run settled %s with %v", status, runErr)
	}
	if len(accepted) != 3 {
		t.Fatalf("accepted %d fields, want 3", len(accepted))
	}

	seen := map[int]bool{}
	for _, id := range accepted {
		if seen[id.FieldIndex] {
			t.Errorf("field index %d accepted twice", id.FieldIndex)
		}
		seen[id.FieldIndex] = true
		if !id.Included {
			t.Errorf("field %d not included by default", id.FieldIndex)
		}
	}

	want := map[string]string{
		fields[0].StableKey: "Merry",
		fields[1].StableKey: "Christmas",
		fields[2].StableKey: "merry@example.com",
	}
	for key, value := range want {
		if got, ok := page.value(key); !ok || got != value {
			t.Errorf("page value for %s = %q, want %q", key, got, value)
		}
	}
}

func TestRunWritesTrace(t *testing.T) {
	dir := t.TempDir()
	trace, err := recorder.NewRecorder(dir)
	if err != nil {
		t.Fatal(err)
	}

	raws := applicationRaws()
	fields := field.DescribeAll(raws)
	page := newFakePage(raws)
	reply := fmt.Sprintf(`[{"key":%q,"value":"Merry"}]`, fields[0].StableKey)
	provider := &fakeProvider{replies: []string{reply}}

	runner := NewRunner()
	run, err := runner.Start(context.Background(), page, Options{
		Provider: provider,
		Trace:    trace,
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	run.Wait()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 trace file, got %d", len(entries))
	}
	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	for _, event := range []string{recorder.EventRunStarted, recorder.EventFieldsCollected, recorder.EventFilled, recorder.EventRunSettled} {
		if !strings.Contains(string(content), event) {
			t.Errorf("trace missing %s event", event)
		}
	}
}

func TestRunPromptsCarryFieldsAndDocument(t *testing.T) {
	raws := applicationRaws()
	fields := field.DescribeAll(raws)
	page := newFakePage(raws)
	reply := fmt.Sprintf(`[{"key":%q,"value":"Merry"}]`, fields[0].StableKey)
	provider := &fakeProvider{replies: []string{reply}}

	runner := NewRunner()
	run, err := runner.Start(context.Background(), page, Options{
		Provider: provider,
		Document: "Merry Lamb, Berlin",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	run.Wait()

	if status, _, runErr := run.Snapshot(); status != StatusDone || runErr != nil {
		t.Fatalf("run settled %s with %v", status, runErr)
	}
	if got := provider.promptCount(); got != 1 {
		t.Fatalf("expected 1 prompt, got %d", got)
	}
	prompt := provider.prompts[0]
	for _, want := range []string{fields[0].StableKey, `"first_name"`, "Merry Lamb, Berlin"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
