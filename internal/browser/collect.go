package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-rod/rod"

	"github.com/leadbit-flash1/251005forms/internal/field"
)

// collectScript walks the live DOM and returns one record per fillable
// control. Matched nodes are stashed in a window-scoped array so a later
// fill can address the exact node by handle instead of re-running a
// selector against a DOM that may have shifted.
//
// Pass order fixes field identity: form controls first in form order, then
// standalone controls in document order, then contenteditable/ARIA textbox
// surfaces with orderInForm pinned to 9999 so they sort after everything
// the forms own.
const collectScript = `
(gen) => {
	const stash = [];
	window.__formpilotNodes = stash;
	window.__formpilotGen = gen;

	const seen = new Set();
	const out = [];
	const skipTypes = new Set(['hidden', 'submit', 'button', 'reset', 'image']);

	const visible = (el) => {
		const rect = el.getBoundingClientRect();
		if (rect.width <= 5 || rect.height <= 5) return false;
		const style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden';
	};

	const clip = (s, n) => (s || '').replace(/\s+/g, ' ').trim().substring(0, n);

	const labelFor = (el) => {
		if (el.id) {
			const lab = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (lab) return clip(lab.textContent, 120);
		}
		const wrap = el.closest('label');
		if (wrap) return clip(wrap.textContent, 120);
		const aria = el.getAttribute('aria-label');
		if (aria) return clip(aria, 120);
		const labelledBy = el.getAttribute('aria-labelledby');
		if (labelledBy) {
			const parts = labelledBy.split(/\s+/)
				.map(id => document.getElementById(id))
				.filter(Boolean)
				.map(n => clip(n.textContent, 120));
			if (parts.length) return parts.join(' ');
		}
		return '';
	};

	const parentLabels = (el) => {
		const labels = [];
		let node = el.parentElement;
		for (let depth = 0; node && depth < 3; depth++) {
			const cand = node.querySelector(':scope > label, :scope > legend, :scope > h1, :scope > h2, :scope > h3, :scope > h4');
			if (cand) {
				const text = clip(cand.textContent, 80);
				if (text) labels.push(text);
			}
			node = node.parentElement;
		}
		return labels;
	};

	const nearbyText = (el) => {
		let sib = el.previousElementSibling;
		for (let i = 0; sib && i < 2; i++) {
			const text = clip(sib.textContent, 200);
			if (text) return text;
			sib = sib.previousElementSibling;
		}
		if (el.parentElement) {
			return clip(el.parentElement.textContent, 200);
		}
		return '';
	};

	const cssPath = (el) => {
		if (el.id) return '#' + CSS.escape(el.id);
		const parts = [];
		let node = el;
		while (node && node.nodeType === 1 && node.tagName !== 'BODY' && parts.length < 8) {
			const tag = node.tagName.toLowerCase();
			let nth = 1;
			let sib = node;
			while ((sib = sib.previousElementSibling)) {
				if (sib.tagName === node.tagName) nth++;
			}
			parts.unshift(tag + ':nth-of-type(' + nth + ')');
			if (node.parentElement && node.parentElement.id) {
				parts.unshift('#' + CSS.escape(node.parentElement.id));
				break;
			}
			node = node.parentElement;
		}
		return parts.join(' > ');
	};

	const record = (el, formMeta, formIndex, orderInForm, potential) => {
		if (seen.has(el)) return;
		if (!visible(el)) return;

		const tag = el.tagName.toLowerCase();
		const inputType = tag === 'input' ? (el.type || 'text').toLowerCase() : '';
		if (skipTypes.has(inputType)) return;
		if (el.disabled || el.readOnly) return;

		seen.add(el);
		const rect = el.getBoundingClientRect();

		const options = [];
		if (tag === 'select') {
			for (const opt of Array.from(el.options).slice(0, 60)) {
				options.push({ value: opt.value, text: clip(opt.textContent, 80) });
			}
		}

		out.push({
			handle: stash.push(el) - 1,
			tag,
			inputType,
			contentEditable: el.isContentEditable === true,
			potential: potential === true,
			id: el.id || '',
			name: el.name || el.getAttribute('name') || '',
			placeholder: el.placeholder || el.getAttribute('placeholder') || '',
			label: labelFor(el),
			required: el.required === true || el.getAttribute('aria-required') === 'true',
			formId: formMeta.id,
			formName: formMeta.name,
			formAction: formMeta.action,
			formMethod: formMeta.method,
			formIndex,
			orderInForm,
			parentLabels: parentLabels(el),
			nearbyText: nearbyText(el),
			cssPath: cssPath(el),
			options,
			width: rect.width,
			height: rect.height
		});
	};

	const noForm = { id: '', name: '', action: '', method: '' };

	// Pass 1: controls owned by a form, in form order.
	const forms = Array.from(document.querySelectorAll('form'));
	forms.forEach((form, formIndex) => {
		const meta = {
			id: form.id || '',
			name: form.getAttribute('name') || '',
			action: form.getAttribute('action') || '',
			method: (form.getAttribute('method') || '').toLowerCase()
		};
		let order = 0;
		for (const el of form.querySelectorAll('input, select, textarea')) {
			record(el, meta, formIndex, order, false);
			order++;
		}
	});

	// Pass 2: standalone controls outside any form.
	let standaloneOrder = 0;
	for (const el of document.querySelectorAll('input, select, textarea')) {
		if (el.closest('form')) continue;
		record(el, noForm, -1, standaloneOrder, false);
		standaloneOrder++;
	}

	// Pass 3: contenteditable surfaces and ARIA textboxes.
	for (const el of document.querySelectorAll('[contenteditable="true"], [contenteditable=""], [role="textbox"], [role="combobox"], [role="searchbox"]')) {
		if (el.tagName === 'INPUT' || el.tagName === 'SELECT' || el.tagName === 'TEXTAREA') continue;
		record(el, noForm, -1, 9999, true);
	}

	return out;
}
`

// Collect runs the collector script against a session's page and returns
// the raw field records. Each call starts a fresh stash generation; fill
// handles from earlier passes become invalid.
func (m *Manager) Collect(ctx context.Context, sessionID string) ([]field.Raw, error) {
	page, ok := m.Page(sessionID)
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}

	gen := m.bumpGeneration(sessionID)

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           collectScript,
		JSArgs:       []interface{}{gen},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("collect fields: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal collected fields: %w", err)
	}

	var records []field.Raw
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode collected fields: %w", err)
	}

	log.Printf("[session:%s] collected %d fields (generation %d)", sessionID, len(records), gen)
	return records, nil
}
