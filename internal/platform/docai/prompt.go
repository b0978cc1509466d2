package docai

import (
	"encoding/json"
	"strings"
)

// buildSystemPrompt composes the instruction message with formatting rules
// and the JSON Schema the response must satisfy.
func buildSystemPrompt() string {
	parts := []string{
		"You are an intake parser for a specialty-medication enrollment service. Return ONLY JSON that matches the provided JSON Schema.",
		"Extract the patient's first and last name exactly as written, without honorifics.",
		"Use MM/DD/YYYY for date_of_birth, zero-padded (e.g. 03/15/1985).",
		"If the source is a scanned document, put the full readable text in transcript_text.",
		"Include insurance_plan, insurance_member_id and insurance_group_id when an insurance card or coverage section is present.",
		"prescriber_name is the referring or prescribing clinician, not the patient.",
		"Set confidence between 0 and 1 for how certain you are about the identity fields.",
		"Never output null. If a field is not present, omit it.",
	}
	return strings.Join(parts, " ") + "\n\nJSON Schema:\n" + mustJSON(BuildFieldsSchema())
}

// buildUserPrompt wraps the source text. Image-bearing requests may carry an
// empty text body; the attached page stands on its own.
func buildUserPrompt(text string) string {
	if strings.TrimSpace(text) == "" {
		return "Extract the enrollment fields from the attached document."
	}
	return "Source text:\n\"\"\"\n" + text + "\n\"\"\"\n\nReturn ONLY JSON that matches the provided schema."
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
