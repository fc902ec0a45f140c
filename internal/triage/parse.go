package triage

import (
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// logger receives parse-anomaly events. Parsing is best-effort over
// free text from a non-deterministic source, so anomalies are logged,
// never propagated.
var logger = zerolog.Nop()

// SetLogger routes parse diagnostics to the given logger.
func SetLogger(l zerolog.Logger) {
	logger = l.With().Str("component", "triage").Logger()
}

// listBlock captures a heading's inline value plus any bulleted or
// numbered continuation lines. Only horizontal whitespace may follow
// the newline: a blank line ends the block, so a numbered section
// heading after it is never mistaken for a list item.
const listBlock = `([^\n]*(?:\n[ \t]*(?:[-*•]|\d+[.)])[^\n]*)*)`

var (
	symptomsRe = regexp.MustCompile(`(?i)(?:normalized symptoms?|symptoms?):\s*` + listBlock)
	durationRe = regexp.MustCompile(`(?i)(?:duration|timeline)(?:\s+and\s+severity)?(?:\s+assessment)?:\s*([^\n]+)`)
	severityRe = regexp.MustCompile(`(?i)severity(?:\s+assessment)?:\s*\**\s*(low|medium|high|mild|moderate|severe)`)
	riskRe     = regexp.MustCompile(`(?i)(?:risk factors?|risks?)(?:\s+identified)?:\s*` + listBlock)
	gapsRe     = regexp.MustCompile(`(?i)(?:confidence gaps?|needs clarification|unclear information):\s*` + listBlock)
	flagsRe    = regexp.MustCompile(`(?i)(?:red[- ]flags?(?:\s+signals?)?|warning signs?):\s*` + listBlock)
	recsRe     = regexp.MustCompile(`(?i)(?:recommendations?|recommended actions?|actions?):\s*` + listBlock)
	urgencyRe  = regexp.MustCompile(`(?i)(?:recommended urgency(?:\s+level)?|urgency(?:\s+level)?(?:\s+score)?):\s*\**\s*(low|medium|high|emergency)`)

	bulletRe = regexp.MustCompile(`\n[ \t]*(?:[-*•]|\d+[.)])`)
	leadRe   = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)])\s*`)
)

// medicalKeywords mark a recommendation as needing a clinician rather
// than self-care.
var medicalKeywords = []string{
	"consult", "doctor", "physician", "clinic", "seek medical",
	"medical attention", "emergency", "hospital",
}

// Parse maps raw model text to a structured analysis. Every section is
// extracted independently: a malformed or missing section degrades to
// its default value and never aborts parsing of the others. The
// verbatim raw text is always preserved for audit and manual review.
// Parse never panics.
func Parse(raw string, elapsed time.Duration) (a *Analysis) {
	a = newAnalysis(raw, elapsed.Milliseconds())

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("response parsing degraded to defaults")
		}
	}()

	if m := symptomsRe.FindStringSubmatch(raw); m != nil {
		a.NormalizedSymptoms = splitItems(m[1])
	}

	if m := durationRe.FindStringSubmatch(raw); m != nil {
		if d := strings.TrimSpace(m[1]); d != "" {
			a.Duration = d
		}
	}

	if m := severityRe.FindStringSubmatch(raw); m != nil {
		a.Severity = normalizeSeverity(m[1])
	}

	if m := riskRe.FindStringSubmatch(raw); m != nil {
		a.RiskFactors = splitItems(m[1])
	}

	if m := gapsRe.FindStringSubmatch(raw); m != nil {
		a.ConfidenceGaps = splitItems(m[1])
	}

	if m := flagsRe.FindStringSubmatch(raw); m != nil {
		a.RedFlags = splitItems(m[1])
	}

	if m := recsRe.FindStringSubmatch(raw); m != nil {
		a.Recommendations = classifyRecommendations(splitItems(m[1]))
	}

	if m := urgencyRe.FindStringSubmatch(raw); m != nil {
		a.Urgency = Urgency(strings.ToLower(m[1]))
	}

	return a
}

// normalizeSeverity folds model phrasing onto the three-level scale.
func normalizeSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "mild", "low":
		return SeverityLow
	case "severe", "high":
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// splitItems breaks a captured block on bullet and numbering
// delimiters, trims each item and discards empties.
func splitItems(block string) []string {
	items := []string{}
	for _, part := range bulletRe.Split(block, -1) {
		part = leadRe.ReplaceAllString(part, "")
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	return items
}

// classifyRecommendations tags each item self_care or medical by a
// simple keyword test.
func classifyRecommendations(items []string) []Recommendation {
	recs := make([]Recommendation, 0, len(items))
	for _, item := range items {
		recType := RecommendationSelfCare
		lower := strings.ToLower(item)
		for _, kw := range medicalKeywords {
			if strings.Contains(lower, kw) {
				recType = RecommendationMedical
				break
			}
		}
		recs = append(recs, Recommendation{Type: recType, Title: item})
	}
	return recs
}
