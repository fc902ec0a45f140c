package triage

import "strings"

// StopSequences terminate a completion at the end of the model turn.
var StopSequences = []string{"</s>", "<end_of_turn>", "Human:", "User:"}

// imageMarker is the placeholder the multimodal engine substitutes
// with the attached image's embedding.
const imageMarker = "<image>"

const systemInstruction = "You are a medical AI assistant. Analyze the following patient complaint " +
	"and provide a structured assessment. DO NOT diagnose or prescribe. Only analyze symptoms."

var requestedSections = []string{
	"1. Normalized symptoms (list)",
	"2. Duration and severity assessment",
	"3. Risk factors identified",
	"4. Any confidence gaps or unclear information",
	"5. Red-flag signals (if any)",
	"6. Recommended urgency level (low/medium/high/emergency)",
	"7. Recommendations (self-care steps or when to consult a doctor)",
}

// BuildPrompt assembles the clinical prompt for one completion. It is
// a pure function: identical inputs always produce identical output.
// When hasImage is set an image placeholder is prepended so the engine
// attends to the attached picture.
func BuildPrompt(query string, hasImage bool) string {
	var sb strings.Builder

	sb.WriteString("<start_of_turn>user\n")
	if hasImage {
		sb.WriteString(imageMarker)
		sb.WriteString("\n")
	}
	sb.WriteString(systemInstruction)
	sb.WriteString("\n\nPatient complaint: ")
	sb.WriteString(query)
	sb.WriteString("\n\nPlease provide:\n")
	for _, section := range requestedSections {
		sb.WriteString(section)
		sb.WriteString("\n")
	}
	sb.WriteString("\nKeep responses clinical, factual, and structured.\n")
	sb.WriteString("<end_of_turn>\n<start_of_turn>model\n")

	return sb.String()
}
