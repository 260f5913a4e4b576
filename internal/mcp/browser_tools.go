package mcp

import (
	"context"
	"fmt"

	"github.com/leadbit-flash1/251005forms/internal/browser"
)

// LaunchBrowserTool starts (or reconnects to) the managed Chrome instance.
type LaunchBrowserTool struct {
	sessions *browser.Manager
}

func (t *LaunchBrowserTool) Name() string { return "launch-browser" }

func (t *LaunchBrowserTool) Description() string {
	return `Launch the managed Chrome instance, or reconnect to one that is already running.
Must be called before any page or form tool. Safe to call twice; a second call
reuses the existing browser.`
}

func (t *LaunchBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *LaunchBrowserTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := t.sessions.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return map[string]interface{}{
		"success": true,
		"message": "browser is running",
	}, nil
}

// ShutdownBrowserTool closes every page and disconnects from Chrome.
type ShutdownBrowserTool struct {
	sessions *browser.Manager
}

func (t *ShutdownBrowserTool) Name() string { return "shutdown-browser" }

func (t *ShutdownBrowserTool) Description() string {
	return `Close all tracked pages and shut down the managed browser. Session metadata
is persisted so pages can be re-attached after the next launch.`
}

func (t *ShutdownBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *ShutdownBrowserTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := t.sessions.Shutdown(ctx); err != nil {
		return nil, fmt.Errorf("failed to shut down browser: %w", err)
	}
	return map[string]interface{}{
		"success": true,
		"message": "browser shut down",
	}, nil
}

// ListPagesTool reports every tracked page session.
type ListPagesTool struct {
	sessions *browser.Manager
}

func (t *ListPagesTool) Name() string { return "list-pages" }

func (t *ListPagesTool) Description() string {
	return `List all tracked page sessions with their id, URL, title and status.
Detached entries come from a previous browser run and need attach-page
before they can be used.`
}

func (t *ListPagesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *ListPagesTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	sessions := t.sessions.List()
	return map[string]interface{}{
		"success":  true,
		"count":    len(sessions),
		"sessions": sessions,
	}, nil
}

// OpenPageTool opens a new page and navigates it.
type OpenPageTool struct {
	sessions *browser.Manager
}

func (t *OpenPageTool) Name() string { return "open-page" }

func (t *OpenPageTool) Description() string {
	return `Open a new browser page, navigate it to the given URL and return its
session id. The id is the handle every other page tool takes.`
}

func (t *OpenPageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to navigate the new page to",
			},
		},
		"required": []string{"url"},
	}
}

func (t *OpenPageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url, err := getStringArg(args, "url")
	if err != nil {
		return nil, err
	}

	session, err := t.sessions.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return map[string]interface{}{
		"success":    true,
		"session_id": session.ID,
		"url":        session.URL,
		"title":      session.Title,
	}, nil
}

// AttachPageTool adopts an existing browser tab by DevTools target id.
type AttachPageTool struct {
	sessions *browser.Manager
}

func (t *AttachPageTool) Name() string { return "attach-page" }

func (t *AttachPageTool) Description() string {
	return `Attach to a tab the user already has open, identified by its DevTools
target id, and track it as a session. Use this when the form is in a tab
the user navigated to manually.`
}

func (t *AttachPageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"target_id": map[string]interface{}{
				"type":        "string",
				"description": "DevTools target id of the tab to attach",
			},
		},
		"required": []string{"target_id"},
	}
}

func (t *AttachPageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	targetID, err := getStringArg(args, "target_id")
	if err != nil {
		return nil, err
	}

	session, err := t.sessions.Attach(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to attach page: %w", err)
	}

	return map[string]interface{}{
		"success":    true,
		"session_id": session.ID,
		"url":        session.URL,
		"title":      session.Title,
	}, nil
}

// ClosePageTool closes one tracked page.
type ClosePageTool struct {
	sessions *browser.Manager
}

func (t *ClosePageTool) Name() string { return "close-page" }

func (t *ClosePageTool) Description() string {
	return `Close a tracked page session and its browser tab.`
}

func (t *ClosePageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Session id returned by open-page or attach-page",
			},
		},
		"required": []string{"session_id"},
	}
}

func (t *ClosePageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	sessionID, err := getStringArg(args, "session_id")
	if err != nil {
		return nil, err
	}

	if err := t.sessions.Close(sessionID); err != nil {
		return nil, fmt.Errorf("failed to close page: %w", err)
	}

	return map[string]interface{}{
		"success":    true,
		"session_id": sessionID,
	}, nil
}
