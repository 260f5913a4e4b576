package resolver

import (
	"strings"

	"github.com/leadbit-flash1/251005forms/internal/field"
)

// Identified is a field joined with its accepted suggestion. Included is
// user-togglable and defaults to true; Synthesized marks policy backfill
// entries rather than model output.
type Identified struct {
	FieldIndex  int     `json:"fieldIndex"`
	Key         string  `json:"key"`
	Value       string  `json:"value"`
	Confidence  float64 `json:"confidence"`
	Included    bool    `json:"included"`
	Reason      string  `json:"reason,omitempty"`
	Synthesized bool    `json:"synthesized,omitempty"`
}

// Resolver maps untrusted suggestions back to collected fields and tracks
// which fields have already been claimed within the run. The lookup tables
// are built once per collection pass; on duplicate identities the earliest
// field in document order wins.
type Resolver struct {
	fields    []field.Descriptor
	byKey     map[string]int
	byCSSPath map[string]int
	byID      map[string]int
	byName    map[string]int
	byLabel   map[string]int
	byFormPos map[[2]int]int
	claimed   map[int]bool
	policy    SelectPolicy
}

// New builds a resolver over one collection pass.
func New(fields []field.Descriptor, policy SelectPolicy) *Resolver {
	r := &Resolver{
		fields:    fields,
		byKey:     make(map[string]int, len(fields)),
		byCSSPath: make(map[string]int),
		byID:      make(map[string]int),
		byName:    make(map[string]int),
		byLabel:   make(map[string]int),
		byFormPos: make(map[[2]int]int),
		claimed:   make(map[int]bool),
		policy:    policy,
	}
	for _, d := range fields {
		putIfAbsent(r.byKey, d.StableKey, d.Index)
		putIfAbsent(r.byCSSPath, d.CSSPath, d.Index)
		putIfAbsent(r.byID, field.Normalize(d.ID), d.Index)
		putIfAbsent(r.byName, field.Normalize(d.Name), d.Index)
		putIfAbsent(r.byLabel, field.Normalize(d.Label), d.Index)
		if _, ok := r.byFormPos[[2]int{d.FormIndex, d.OrderInForm}]; !ok {
			r.byFormPos[[2]int{d.FormIndex, d.OrderInForm}] = d.Index
		}
	}
	return r
}

func putIfAbsent(m map[string]int, key string, idx int) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = idx
	}
}

// Resolve maps a suggestion to at most one field index. The fallback chain
// is tried in order, first match wins: stable key, css path, normalized id,
// normalized name, normalized label, (formIndex, orderInForm), raw index.
func (r *Resolver) Resolve(s field.Suggestion) (int, bool) {
	if s.Key != "" {
		if idx, ok := r.byKey[s.Key]; ok {
			return idx, true
		}
		if idx, ok := r.byCSSPath[s.Key]; ok {
			return idx, true
		}
		norm := field.Normalize(s.Key)
		if idx, ok := r.byID[norm]; ok {
			return idx, true
		}
		if idx, ok := r.byName[norm]; ok {
			return idx, true
		}
		if idx, ok := r.byLabel[norm]; ok {
			return idx, true
		}
	}
	if s.OrderInForm >= 0 {
		if idx, ok := r.byFormPos[[2]int{s.FormIndex, s.OrderInForm}]; ok {
			return idx, true
		}
	}
	if s.Index >= 0 && s.Index < len(r.fields) {
		return s.Index, true
	}
	return 0, false
}

// Accept resolves and validates one suggestion. A false return means the
// suggestion was dropped: unresolvable, targeting an already-claimed
// field, empty value, a date that does not normalize, or a select value
// with no matching option and no policy default.
func (r *Resolver) Accept(s field.Suggestion) (Identified, bool) {
	idx, ok := r.Resolve(s)
	if !ok {
		return Identified{}, false
	}
	if r.claimed[idx] {
		return Identified{}, false
	}
	d := r.fields[idx]

	value := strings.TrimSpace(s.Value)
	if value == "" {
		return Identified{}, false
	}

	if d.Type == field.TypeDate {
		normalized, ok := NormalizeDate(value, today())
		if !ok {
			return Identified{}, false
		}
		value = normalized
	}

	if d.Type == field.TypeSelect {
		option, ok := matchOption(d.Options, value)
		if !ok {
			option, ok = r.policy.Fallback(d, value)
		}
		if !ok {
			return Identified{}, false
		}
		value = option
	}

	r.claimed[idx] = true
	return Identified{
		FieldIndex: idx,
		Key:        d.StableKey,
		Value:      value,
		Confidence: s.Confidence,
		Included:   true,
		Reason:     s.Reason,
	}, true
}

// Claimed reports whether a field index already carries an accepted
// suggestion in this run.
func (r *Resolver) Claimed(idx int) bool {
	return r.claimed[idx]
}

// matchOption matches a value against select options by value or visible
// text, case-insensitively, returning the canonical option value.
func matchOption(options []field.Option, value string) (string, bool) {
	norm := field.Normalize(value)
	for _, opt := range options {
		if field.Normalize(opt.Value) == norm || field.Normalize(opt.Text) == norm {
			return opt.Value, true
		}
	}
	return "", false
}
