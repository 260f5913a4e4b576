package gateway

import (
	"encoding/json"

	"github.com/leadbit-flash1/251005forms/internal/field"
)

const instructions = `You are a form-filling assistant. You receive a JSON array of form
field descriptors from a web page and a context document about a person.
Infer a value for each field you are confident about.

Output a JSON array only, no explanation and no markdown. Each entry:
{"key": "<field key>", "index": <field index>, "value": "<string>", "confidence": <0..1>, "reason": "<short>"}

Rules:
- "key" must be copied verbatim from the field descriptor.
- Split full names: a firstName field gets only the first name, a lastName
  field only the last name. Ignore titles like Mr./Ms./Dr.
- Extract email addresses and phone numbers exactly as written in the context.
- Dates must be formatted YYYY-MM-DD. Treat "Present" or "Current" as today.
- For select fields the value MUST be one of the listed option values or
  option texts. Never invent an option.
- Omit a field entirely when the context gives you no confident value.
- Never fill password fields.`

// BuildPrompt assembles one batch prompt: instructions, the minimized field
// descriptors, and a bounded excerpt of the user's context document.
func BuildPrompt(fields []field.PromptField, contextExcerpt string) (string, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return instructions + "\n\nFields:\n" + string(payload) + "\n\nContext:\n" + contextExcerpt, nil
}
