package field

import (
	"regexp"
	"strconv"
	"strings"
)

// Describe converts a raw collector record into a Descriptor. It is a pure
// function of the record: calling it again for the same structural inputs
// yields the same StableKey regardless of index.
func Describe(raw Raw, index int) Descriptor {
	d := Descriptor{
		Index:        index,
		Handle:       raw.Handle,
		Type:         InferType(raw),
		Tag:          strings.ToLower(raw.Tag),
		ID:           raw.ID,
		Name:         raw.Name,
		Label:        collapseSpace(raw.Label),
		Placeholder:  raw.Placeholder,
		Required:     raw.Required,
		FormID:       raw.FormID,
		FormName:     raw.FormName,
		FormAction:   raw.FormAction,
		FormMethod:   raw.FormMethod,
		FormIndex:    raw.FormIndex,
		OrderInForm:  raw.OrderInForm,
		ParentLabels: raw.ParentLabels,
		NearbyText:   collapseSpace(raw.NearbyText),
		CSSPath:      raw.CSSPath,
		Options:      raw.Options,
	}
	d.StableKey = stableKey(d)
	return d
}

// DescribeAll maps a full collection pass, assigning sequential indices.
func DescribeAll(raws []Raw) []Descriptor {
	out := make([]Descriptor, 0, len(raws))
	for i, raw := range raws {
		out = append(out, Describe(raw, i))
	}
	return out
}

var (
	firstNamePat = regexp.MustCompile(`first[\s_-]*name|given[\s_-]*name|\bfname\b`)
	lastNamePat  = regexp.MustCompile(`last[\s_-]*name|family[\s_-]*name|surname|\blname\b`)
	fullNamePat  = regexp.MustCompile(`full[\s_-]*name|your[\s_-]*name|^name$`)
	emailPat     = regexp.MustCompile(`e[\s_-]*mail`)
	phonePat     = regexp.MustCompile(`phone|mobile|\btel\b`)
	datePat      = regexp.MustCompile(`\bdate\b|birth|\bdob\b|start[\s_-]*date|end[\s_-]*date`)
)

// InferType maps a raw record onto the semantic tag set. The input type
// attribute wins when it is already specific; otherwise the normalized
// name/id/label/placeholder composite is pattern-matched.
func InferType(raw Raw) Type {
	switch strings.ToLower(raw.Tag) {
	case "select":
		return TypeSelect
	case "textarea":
		return TypeTextarea
	}
	if raw.ContentEditable || raw.Potential {
		return TypeTextarea
	}

	switch strings.ToLower(raw.InputType) {
	case "email":
		return TypeEmail
	case "tel":
		return TypePhone
	case "date", "month":
		return TypeDate
	case "file":
		return TypeFile
	case "checkbox":
		return TypeCheckbox
	case "radio":
		return TypeRadio
	case "url":
		return TypeURL
	case "number":
		return TypeNumber
	case "password":
		return TypePassword
	}

	hint := normalize(raw.Name + " " + raw.ID + " " + raw.Label + " " + raw.Placeholder)
	switch {
	case emailPat.MatchString(hint):
		return TypeEmail
	case phonePat.MatchString(hint):
		return TypePhone
	case firstNamePat.MatchString(hint):
		return TypeFirstName
	case lastNamePat.MatchString(hint):
		return TypeLastName
	case fullNamePat.MatchString(hint):
		return TypeFullName
	case datePat.MatchString(hint):
		return TypeDate
	}
	return TypeText
}

// stableKey hashes the normalized structural composite of a descriptor.
// Geometry and Index are deliberately excluded so the key survives
// independent collection passes of an unchanged DOM. This is an identity
// tag, not a security primitive.
func stableKey(d Descriptor) string {
	parts := []string{
		string(d.Type),
		d.Tag,
		d.ID,
		d.Name,
		d.Label,
		d.Placeholder,
		d.FormID,
		d.FormName,
		d.FormAction,
		d.FormMethod,
		strconv.Itoa(d.FormIndex),
		strconv.Itoa(d.OrderInForm),
		strings.Join(d.ParentLabels, " "),
		d.NearbyText,
		d.CSSPath,
	}
	composite := normalize(strings.Join(parts, "|"))

	var h uint32
	for _, r := range composite {
		h = h*31 + uint32(r)
	}
	return "f" + strconv.FormatUint(uint64(h), 36)
}

// normalize lowercases and collapses runs of whitespace to single spaces.
func normalize(s string) string {
	return strings.ToLower(collapseSpace(s))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalize is the matching normalization used by the resolver for id,
// name, and label comparisons.
func Normalize(s string) string {
	return normalize(s)
}
