package field

import "unicode/utf8"

// Type is the inferred semantic category of a field. The set is closed but
// deliberately coarse; anything unrecognized degrades to TypeText.
type Type string

const (
	TypeText      Type = "text"
	TypeEmail     Type = "email"
	TypePhone     Type = "phone"
	TypeFirstName Type = "firstName"
	TypeLastName  Type = "lastName"
	TypeFullName  Type = "fullName"
	TypeDate      Type = "date"
	TypeSelect    Type = "select"
	TypeCheckbox  Type = "checkbox"
	TypeRadio     Type = "radio"
	TypeTextarea  Type = "textarea"
	TypeFile      Type = "file"
	TypeURL       Type = "url"
	TypeNumber    Type = "number"
	TypePassword  Type = "password"
)

// Option is one choice of a select control.
type Option struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// Raw is the record the collector's injected script returns for one node.
// Handle indexes the page's stash array so a later fill can target the
// exact node without re-resolving a selector.
type Raw struct {
	Handle          int      `json:"handle"`
	Tag             string   `json:"tag"`
	InputType       string   `json:"inputType"`
	ContentEditable bool     `json:"contentEditable"`
	Potential       bool     `json:"potential"`
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Placeholder     string   `json:"placeholder"`
	Label           string   `json:"label"`
	Required        bool     `json:"required"`
	FormID          string   `json:"formId"`
	FormName        string   `json:"formName"`
	FormAction      string   `json:"formAction"`
	FormMethod      string   `json:"formMethod"`
	FormIndex       int      `json:"formIndex"`
	OrderInForm     int      `json:"orderInForm"`
	ParentLabels    []string `json:"parentLabels"`
	NearbyText      string   `json:"nearbyText"`
	CSSPath         string   `json:"cssPath"`
	Options         []Option `json:"options"`
	Width           float64  `json:"width"`
	Height          float64  `json:"height"`
}

// Descriptor is the serializable projection of a collected field. Index is
// only meaningful within the collection pass that produced it; StableKey is
// the canonical identity across passes of an unchanged DOM.
type Descriptor struct {
	Index        int      `json:"index"`
	Handle       int      `json:"-"`
	Type         Type     `json:"type"`
	Tag          string   `json:"tag"`
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name,omitempty"`
	Label        string   `json:"label,omitempty"`
	Placeholder  string   `json:"placeholder,omitempty"`
	Required     bool     `json:"required,omitempty"`
	FormID       string   `json:"formId,omitempty"`
	FormName     string   `json:"formName,omitempty"`
	FormAction   string   `json:"formAction,omitempty"`
	FormMethod   string   `json:"formMethod,omitempty"`
	FormIndex    int      `json:"formIndex"`
	OrderInForm  int      `json:"orderInForm"`
	ParentLabels []string `json:"parentLabels,omitempty"`
	NearbyText   string   `json:"nearbyText,omitempty"`
	CSSPath      string   `json:"cssPath,omitempty"`
	Options      []Option `json:"options,omitempty"`
	StableKey    string   `json:"key"`
}

// Suggestion is one untrusted entry from the model's reply. Index,
// FormIndex, and OrderInForm are -1 when the model omitted them; Key takes
// precedence over Index when both are present and disagree.
type Suggestion struct {
	Key         string
	Index       int
	Value       string
	Confidence  float64
	Reason      string
	FormIndex   int
	OrderInForm int
}

// Fillable reports whether the model should ever see this field. File
// inputs are excluded from every batch and are never filled.
func (d Descriptor) Fillable() bool {
	return d.Type != TypeFile
}

// PromptField is the minimized projection sent to the model. Everything
// the resolver can match on is present; geometry and DOM handles are not.
type PromptField struct {
	Key         string   `json:"key"`
	Index       int      `json:"index"`
	Type        Type     `json:"type"`
	Tag         string   `json:"tag"`
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Label       string   `json:"label,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Nearby      string   `json:"nearby,omitempty"`
	CSSPath     string   `json:"cssPath,omitempty"`
	FormIndex   int      `json:"formIndex"`
	OrderInForm int      `json:"orderInForm"`
	Required    bool     `json:"required,omitempty"`
	Options     []Option `json:"options,omitempty"`
}

// ForPrompt builds the minimized projection for one descriptor.
func (d Descriptor) ForPrompt() PromptField {
	nearby := d.NearbyText
	if len(nearby) > 160 {
		cut := 160
		for cut > 0 && !utf8.RuneStart(nearby[cut]) {
			cut--
		}
		nearby = nearby[:cut]
	}
	return PromptField{
		Key:         d.StableKey,
		Index:       d.Index,
		Type:        d.Type,
		Tag:         d.Tag,
		ID:          d.ID,
		Name:        d.Name,
		Label:       d.Label,
		Placeholder: d.Placeholder,
		Nearby:      nearby,
		CSSPath:     d.CSSPath,
		FormIndex:   d.FormIndex,
		OrderInForm: d.OrderInForm,
		Required:    d.Required,
		Options:     d.Options,
	}
}
