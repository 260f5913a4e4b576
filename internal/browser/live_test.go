package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/leadbit-flash1/251005forms/internal/config"
	"github.com/leadbit-flash1/251005forms/internal/field"
)

const applyPage = `<!DOCTYPE html>
<html><body>
<h2>Apply</h2>
<form id="apply" action="/submit" method="post">
  <label for="first">First name</label>
  <input id="first" name="first_name" type="text">
  <label for="last">Last name</label>
  <input id="last" name="last_name" type="text">
  <label for="auth">Are you authorized to work?</label>
  <select id="auth" name="work_authorization">
    <option value="">Select...</option>
    <option value="yes">Yes</option>
    <option value="no">No</option>
  </select>
  <input type="hidden" name="token" value="x">
  <input type="submit" value="Go">
</form>
<textarea name="cover_letter" rows="4" cols="40">placeholder</textarea>
<div contenteditable="true" id="notes">editable notes</div>
</body></html>`

// TestLiveCollectAndFill exercises the collector and fill scripts against a
// real Chrome. Opt-in: requires a local Chrome and FORMPILOT_LIVE_TESTS set.
func TestLiveCollectAndFill(t *testing.T) {
	if os.Getenv("FORMPILOT_LIVE_TESTS") == "" {
		t.Skip("Skipping live browser tests (set FORMPILOT_LIVE_TESTS to run)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(applyPage))
	}))
	defer srv.Close()

	m := NewManager(config.BrowserConfig{Headless: boolPtr(true)})
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start browser: %v", err)
	}
	defer func() {
		if err := m.Shutdown(ctx); err != nil {
			t.Logf("shutdown warning: %v", err)
		}
	}()

	sess, err := m.Open(ctx, srv.URL)
	if err != nil {
		t.Fatalf("open page: %v", err)
	}

	page, _ := m.Page(sess.ID)
	page.MustWaitLoad()

	raws, err := m.Collect(ctx, sess.ID)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	// first_name, last_name, work_authorization, cover_letter, contenteditable div.
	// The hidden input and submit button must be skipped.
	if len(raws) != 5 {
		t.Fatalf("expected 5 collected fields, got %d: %+v", len(raws), raws)
	}

	fields := field.DescribeAll(raws)

	byName := map[string]field.Descriptor{}
	for _, d := range fields {
		byName[d.Name] = d
	}

	first, ok := byName["first_name"]
	if !ok {
		t.Fatal("first_name not collected")
	}
	if first.Label != "First name" {
		t.Errorf("label resolution failed: %q", first.Label)
	}
	if first.FormIndex != 0 || first.OrderInForm != 0 {
		t.Errorf("unexpected form position: %d/%d", first.FormIndex, first.OrderInForm)
	}

	auth := byName["work_authorization"]
	if auth.Type != field.TypeSelect || len(auth.Options) != 3 {
		t.Errorf("select options not collected: %+v", auth)
	}

	cover := byName["cover_letter"]
	if cover.FormIndex != -1 {
		t.Errorf("standalone field should carry form index -1, got %d", cover.FormIndex)
	}

	var editable *field.Descriptor
	for i := range fields {
		if fields[i].Tag == "div" {
			editable = &fields[i]
		}
	}
	if editable == nil {
		t.Fatal("contenteditable surface not collected")
	}
	if editable.OrderInForm != 9999 {
		t.Errorf("contenteditable order should be 9999, got %d", editable.OrderInForm)
	}

	// Fill through the stash handle, then verify the DOM saw it.
	if err := m.Fill(ctx, sess.ID, first, "Merry"); err != nil {
		t.Fatalf("fill text: %v", err)
	}
	if err := m.Fill(ctx, sess.ID, auth, "yes"); err != nil {
		t.Fatalf("fill select: %v", err)
	}

	val := page.MustEval(`() => document.getElementById('first').value`).String()
	if val != "Merry" {
		t.Errorf("expected filled value 'Merry', got %q", val)
	}
	sel := page.MustEval(`() => document.getElementById('auth').value`).String()
	if sel != "yes" {
		t.Errorf("expected selected 'yes', got %q", sel)
	}

	// Unmatched option value must fail, not silently pick something.
	if err := m.Fill(ctx, sess.ID, auth, "maybe"); err == nil {
		t.Error("expected error for unmatched select option")
	}

	// Clear resets the control.
	if err := m.Clear(ctx, sess.ID, first); err != nil {
		t.Fatalf("clear: %v", err)
	}
	val = page.MustEval(`() => document.getElementById('first').value`).String()
	if val != "" {
		t.Errorf("expected cleared value, got %q", val)
	}
}

func boolPtr(b bool) *bool { return &b }
