// Package triage builds the clinical prompt and interprets raw model
// output as a structured assessment.
package triage

// Severity grades how intense the described symptoms are.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Urgency grades how quickly the patient should seek care.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

// RecommendationType tags a recommendation as self-manageable or as
// one that needs a clinician.
type RecommendationType string

const (
	RecommendationSelfCare RecommendationType = "self_care"
	RecommendationMedical  RecommendationType = "medical"
)

// Recommendation is one suggested next step for the patient.
type Recommendation struct {
	Type  RecommendationType `json:"type"`
	Title string             `json:"title"`
}

// Analysis is the structured result of one inference call. List fields
// are always non-nil: a section absent from the model output yields an
// empty slice, so callers branch on emptiness, never on nil.
type Analysis struct {
	NormalizedSymptoms []string         `json:"normalized_symptoms"`
	Duration           string           `json:"duration"`
	Severity           Severity         `json:"severity"`
	RiskFactors        []string         `json:"risk_factors"`
	ConfidenceGaps     []string         `json:"confidence_gaps"`
	RedFlags           []string         `json:"red_flags"`
	Recommendations    []Recommendation `json:"recommendations"`
	Urgency            Urgency          `json:"urgency_score"`
	RawResponse        string           `json:"raw_response"`
	InferenceTimeMs    int64            `json:"inference_time_ms"`
}

// newAnalysis returns an analysis populated with default values and
// the verbatim raw text.
func newAnalysis(raw string, elapsedMs int64) *Analysis {
	return &Analysis{
		NormalizedSymptoms: []string{},
		Duration:           "Unknown",
		Severity:           SeverityMedium,
		RiskFactors:        []string{},
		ConfidenceGaps:     []string{},
		RedFlags:           []string{},
		Recommendations:    []Recommendation{},
		Urgency:            UrgencyMedium,
		RawResponse:        raw,
		InferenceTimeMs:    elapsedMs,
	}
}
