package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/leadbit-flash1/251005forms/internal/browser"
	"github.com/leadbit-flash1/251005forms/internal/field"
	"github.com/leadbit-flash1/251005forms/internal/gateway"
	"github.com/leadbit-flash1/251005forms/internal/ingest"
	"github.com/leadbit-flash1/251005forms/internal/pipeline"
	"github.com/leadbit-flash1/251005forms/internal/resolver"
)

// CollectFieldsTool walks the page DOM and returns the field descriptors
// without starting a fill run. No model provider is needed.
type CollectFieldsTool struct {
	sessions *browser.Manager
}

func (t *CollectFieldsTool) Name() string { return "collect-fields" }

func (t *CollectFieldsTool) Description() string {
	return `Collect every fillable form field on the page: inputs, textareas, selects
and contenteditable regions, with their labels, positions and stable keys.
Useful to inspect what fill-page would operate on.`
}

func (t *CollectFieldsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Page session to collect fields from",
			},
		},
		"required": []string{"session_id"},
	}
}

func (t *CollectFieldsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	sessionID, err := getStringArg(args, "session_id")
	if err != nil {
		return nil, err
	}

	raws, err := t.sessions.Collect(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to collect fields: %w", err)
	}

	descriptors := field.DescribeAll(raws)
	return map[string]interface{}{
		"success": true,
		"count":   len(descriptors),
		"fields":  descriptors,
	}, nil
}

// FillPageTool starts a background fill run against one page session.
type FillPageTool struct {
	server *Server
}

func (t *FillPageTool) Name() string { return "fill-page" }

func (t *FillPageTool) Description() string {
	return `Start filling the form on a page using the configured model provider and a
source document (resume, profile, notes). The run executes in the background;
poll fill-status for progress and results. Exactly one run can be active at a
time. Provide the document either as a file path (txt, md, html, pdf, docx)
or as inline text.`
}

func (t *FillPageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Page session to fill",
			},
			"document_path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the source document (txt, md, html, pdf, docx)",
			},
			"document_text": map[string]interface{}{
				"type":        "string",
				"description": "Inline source document text, used when document_path is absent",
			},
			"batch_size": map[string]interface{}{
				"type":        "number",
				"description": "Fields per prompt; defaults to the configured batch size",
			},
		},
		"required": []string{"session_id"},
	}
}

func (t *FillPageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	sessionID, err := getStringArg(args, "session_id")
	if err != nil {
		return nil, err
	}

	cfg := t.server.cfg
	document, err := t.loadDocument(args, cfg.Fill.GetExcerptLimit())
	if err != nil {
		return nil, err
	}

	provider, err := t.server.Provider()
	if err != nil {
		return nil, err
	}

	var policy resolver.SelectPolicy
	if len(cfg.Fill.SelectDefaults) > 0 {
		policy = resolver.SelectPolicy(cfg.Fill.SelectDefaults)
	}

	opts := pipeline.Options{
		Provider: provider,
		Session: gateway.SessionOptions{
			Model:       cfg.Gateway.Model,
			MaxTokens:   cfg.Gateway.MaxTokens,
			Temperature: float32(cfg.Gateway.Temperature),
		},
		BatchSize: getOptionalIntArg(args, "batch_size", cfg.Fill.GetBatchSize()),
		Policy:    policy,
		Document:  document,
		Trace:     t.server.trace,
	}

	// The run outlives this tool call; it is bound to the process, not
	// the request.
	run, err := t.server.runner.Start(context.Background(), t.server.sessions.Bind(sessionID), opts)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunActive) {
			return nil, fmt.Errorf("a fill run is already active; cancel it or wait for it to finish")
		}
		return nil, fmt.Errorf("failed to start fill run: %w", err)
	}

	return map[string]interface{}{
		"success":    true,
		"run_id":     run.ID,
		"session_id": sessionID,
		"message":    "fill run started; poll fill-status for progress",
	}, nil
}

func (t *FillPageTool) loadDocument(args map[string]interface{}, limit int) (string, error) {
	if path := getOptionalStringArg(args, "document_path"); path != "" {
		text, err := ingest.FromFile(path, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read document: %w", err)
		}
		return text, nil
	}
	if text := getOptionalStringArg(args, "document_text"); text != "" {
		return ingest.Excerpt(text, limit), nil
	}
	return "", nil
}

// FillStatusTool reports the state of the most recent fill run.
type FillStatusTool struct {
	runner *pipeline.Runner
}

func (t *FillStatusTool) Name() string { return "fill-status" }

func (t *FillStatusTool) Description() string {
	return `Report the most recent fill run: its status (running, done, cancelled,
failed), the fields identified so far with their values, and the terminal
error if the run failed.`
}

func (t *FillStatusTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *FillStatusTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	run, ok := t.runner.Active()
	if !ok {
		return map[string]interface{}{
			"success": true,
			"status":  "idle",
			"message": "no fill run has been started",
		}, nil
	}

	status, identified, runErr := run.Snapshot()
	result := map[string]interface{}{
		"success": true,
		"run_id":  run.ID,
		"status":  string(status),
		"fields":  identified,
	}
	if runErr != nil {
		result["error"] = runErr.Error()
	}
	return result, nil
}

// ToggleFieldTool includes or excludes one identified field, updating the
// page to match.
type ToggleFieldTool struct {
	runner *pipeline.Runner
}

func (t *ToggleFieldTool) Name() string { return "toggle-field" }

func (t *ToggleFieldTool) Description() string {
	return `Toggle one identified field of the current fill run. Excluding a field
clears it on the page; re-including it fills the accepted value back in.`
}

func (t *ToggleFieldTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"field_index": map[string]interface{}{
				"type":        "number",
				"description": "Index of the field as reported by fill-status",
			},
			"included": map[string]interface{}{
				"type":        "boolean",
				"description": "true to fill the value, false to clear it",
			},
		},
		"required": []string{"field_index", "included"},
	}
}

func (t *ToggleFieldTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	fieldIndex, err := getIntArg(args, "field_index")
	if err != nil {
		return nil, err
	}
	included, err := getBoolArg(args, "included")
	if err != nil {
		return nil, err
	}

	run, ok := t.runner.Active()
	if !ok {
		return nil, fmt.Errorf("no fill run to toggle fields on")
	}

	if err := run.SetIncluded(ctx, fieldIndex, included); err != nil {
		return nil, fmt.Errorf("failed to toggle field: %w", err)
	}

	return map[string]interface{}{
		"success":     true,
		"field_index": fieldIndex,
		"included":    included,
	}, nil
}

// CancelFillTool stops the active fill run.
type CancelFillTool struct {
	runner *pipeline.Runner
}

func (t *CancelFillTool) Name() string { return "cancel-fill" }

func (t *CancelFillTool) Description() string {
	return `Cancel the active fill run. Fields already written stay on the page; the
run settles to cancelled and no further prompts are issued.`
}

func (t *CancelFillTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *CancelFillTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	run, ok := t.runner.Active()
	if !ok {
		return nil, fmt.Errorf("no fill run to cancel")
	}
	if run.Finished() {
		return map[string]interface{}{
			"success": true,
			"run_id":  run.ID,
			"message": "run had already finished",
		}, nil
	}

	run.Cancel()
	return map[string]interface{}{
		"success": true,
		"run_id":  run.ID,
		"message": "cancellation requested",
	}, nil
}
