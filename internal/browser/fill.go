package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"

	"github.com/leadbit-flash1/251005forms/internal/field"
)

// fillScript targets one collected control and writes a value into it.
// Node lookup prefers the stash handle from the matching collection
// generation, then degrades through the selectors the descriptor carries:
// id, name, css path. Values are written through the native setters so
// framework-managed inputs (React and friends) observe the change, and
// input/change events are dispatched either way.
const fillScript = `
(gen, handle, id, name, cssPath, value, kind) => {
	let el = null;

	if (window.__formpilotGen === gen && Array.isArray(window.__formpilotNodes)) {
		const cand = window.__formpilotNodes[handle];
		if (cand && cand.isConnected) el = cand;
	}
	if (!el && id) el = document.getElementById(id);
	if (!el && name) {
		try { el = document.querySelector('[name="' + CSS.escape(name) + '"]'); } catch (e) {}
	}
	if (!el && cssPath) {
		try { el = document.querySelector(cssPath); } catch (e) {}
	}
	if (!el) return 'not-found';

	const fire = (type) => el.dispatchEvent(new Event(type, { bubbles: true }));

	const setNative = (node, val) => {
		const proto = node instanceof HTMLTextAreaElement
			? window.HTMLTextAreaElement.prototype
			: window.HTMLInputElement.prototype;
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) desc.set.call(node, val);
		else node.value = val;
	};

	switch (kind) {
	case 'select': {
		let matched = false;
		for (const opt of Array.from(el.options)) {
			if (opt.value === value) { el.value = value; matched = true; break; }
		}
		if (!matched) return 'option-not-found';
		fire('input');
		fire('change');
		return 'ok';
	}
	case 'checkbox': {
		const truthy = ['true', '1', 'yes', 'on', 'checked'].includes(value.toLowerCase());
		el.checked = truthy;
		fire('input');
		fire('change');
		return 'ok';
	}
	case 'radio': {
		let target = el;
		if (el.value !== value && el.name) {
			try {
				const alt = document.querySelector('input[type="radio"][name="' + CSS.escape(el.name) + '"][value="' + CSS.escape(value) + '"]');
				if (alt) target = alt;
			} catch (e) {}
		}
		target.checked = true;
		target.dispatchEvent(new Event('input', { bubbles: true }));
		target.dispatchEvent(new Event('change', { bubbles: true }));
		return 'ok';
	}
	case 'editable': {
		el.textContent = value;
		fire('input');
		return 'ok';
	}
	default: {
		setNative(el, value);
		fire('input');
		fire('change');
		return 'ok';
	}
	}
}
`

// Fill writes one accepted value into the control a descriptor points at.
func (m *Manager) Fill(ctx context.Context, sessionID string, d field.Descriptor, value string) error {
	switch d.Type {
	case field.TypePassword:
		return fmt.Errorf("refusing to fill password field %q", d.StableKey)
	case field.TypeFile:
		return fmt.Errorf("file field %q cannot be filled", d.StableKey)
	}
	return m.write(ctx, sessionID, d, value)
}

// Clear resets a previously filled control to empty.
func (m *Manager) Clear(ctx context.Context, sessionID string, d field.Descriptor) error {
	if d.Type == field.TypeCheckbox || d.Type == field.TypeRadio {
		return m.write(ctx, sessionID, d, "false")
	}
	return m.write(ctx, sessionID, d, "")
}

func (m *Manager) write(ctx context.Context, sessionID string, d field.Descriptor, value string) error {
	page, ok := m.Page(sessionID)
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}

	gen := m.generation(sessionID)

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           fillScript,
		JSArgs:       []interface{}{gen, d.Handle, d.ID, d.Name, d.CSSPath, value, fillKind(d)},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("fill field %q: %w", d.StableKey, err)
	}

	status := strings.Trim(res.Value.String(), `"`)
	if status != "ok" {
		return fmt.Errorf("fill field %q: %s", d.StableKey, status)
	}
	return nil
}

func fillKind(d field.Descriptor) string {
	switch d.Type {
	case field.TypeSelect:
		return "select"
	case field.TypeCheckbox:
		return "checkbox"
	case field.TypeRadio:
		return "radio"
	}
	if d.Tag != "input" && d.Tag != "textarea" && d.Tag != "select" {
		return "editable"
	}
	return "value"
}
