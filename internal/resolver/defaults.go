package resolver

import (
	"regexp"
	"strings"

	"github.com/leadbit-flash1/251005forms/internal/field"
)

// FirstOption is the policy entry meaning "the first non-empty option".
const FirstOption = "*"

// SelectPolicy maps a field role (matched against normalized name and id)
// to an ordered preference list of option values. It exists because the
// observed job-application defaults are assumptions about one site, not a
// general contract; deployments override the table in config.
type SelectPolicy map[string][]string

// DefaultSelectPolicy is the built-in table.
func DefaultSelectPolicy() SelectPolicy {
	return SelectPolicy{
		"source":             {"search_engine", "other"},
		"work_authorization": {"yes"},
		"position":           {"software_engineer", FirstOption},
	}
}

var roleSep = regexp.MustCompile(`[\s\-]+`)

func normalizeRole(s string) string {
	return roleSep.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
}

// Role returns the policy role a descriptor matches, if any. Name wins
// over id; a role token must appear whole inside the normalized attribute.
func (p SelectPolicy) Role(d field.Descriptor) (string, bool) {
	for _, attr := range []string{d.Name, d.ID} {
		norm := normalizeRole(attr)
		if norm == "" {
			continue
		}
		for role := range p {
			if strings.Contains(norm, role) {
				return role, true
			}
		}
	}
	return "", false
}

// Fallback applies the policy to a select field whose suggested value
// matched no option. It returns the first preferred option present in the
// field's options, or false when the policy has nothing to offer.
func (p SelectPolicy) Fallback(d field.Descriptor, _ string) (string, bool) {
	role, ok := p.Role(d)
	if !ok {
		return "", false
	}
	return p.pick(role, d.Options)
}

func (p SelectPolicy) pick(role string, options []field.Option) (string, bool) {
	for _, pref := range p[role] {
		if pref == FirstOption {
			for _, opt := range options {
				if strings.TrimSpace(opt.Value) != "" {
					return opt.Value, true
				}
			}
			continue
		}
		if v, ok := matchOption(options, pref); ok {
			return v, true
		}
	}
	return "", false
}

// Backfill synthesizes low-confidence defaults for policy roles that
// received no accepted suggestion after all batches. Select fields get the
// first preferred option they actually carry; other fields get the first
// preference literal.
func (r *Resolver) Backfill() []Identified {
	var out []Identified
	for _, d := range r.fields {
		if r.claimed[d.Index] || !d.Fillable() {
			continue
		}
		role, ok := r.policy.Role(d)
		if !ok {
			continue
		}

		var value string
		if d.Type == field.TypeSelect {
			v, ok := r.policy.pick(role, d.Options)
			if !ok {
				continue
			}
			value = v
		} else {
			prefs := r.policy[role]
			if len(prefs) == 0 || prefs[0] == FirstOption {
				continue
			}
			value = prefs[0]
		}

		r.claimed[d.Index] = true
		out = append(out, Identified{
			FieldIndex:  d.Index,
			Key:         d.StableKey,
			Value:       value,
			Confidence:  0.3,
			Included:    true,
			Reason:      "default for " + role,
			Synthesized: true,
		})
	}
	return out
}
