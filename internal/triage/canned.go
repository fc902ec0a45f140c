package triage

import "strings"

// cannedCase pairs coarse query keywords with a fixed analysis used in
// the offline simulation mode. Lookups are deterministic: the first
// matching case wins and the table order never changes at runtime.
type cannedCase struct {
	keywords []string
	analysis Analysis
}

var cannedImageCase = Analysis{
	NormalizedSymptoms: []string{"localized skin rash", "redness", "mild swelling"},
	Duration:           "Visible in submitted image",
	Severity:           SeverityLow,
	RiskFactors:        []string{"possible contact allergen exposure"},
	ConfidenceGaps:     []string{"onset time not stated", "itching or pain level unknown"},
	RedFlags:           []string{},
	Recommendations: []Recommendation{
		{Type: RecommendationSelfCare, Title: "Keep the area clean and dry"},
		{Type: RecommendationSelfCare, Title: "Avoid scratching or applying unverified creams"},
		{Type: RecommendationMedical, Title: "Consult a doctor if the rash spreads or blisters"},
	},
	Urgency: UrgencyLow,
	RawResponse: "Symptoms: localized skin rash, redness, mild swelling\n" +
		"Duration: visible in submitted image\nSeverity: mild\n" +
		"Urgency: low\n[simulated response]",
}

var cannedCases = []cannedCase{
	{
		keywords: []string{"chest pain", "chest tightness", "pressure in my chest"},
		analysis: Analysis{
			NormalizedSymptoms: []string{"chest pain", "chest tightness"},
			Duration:           "Acute onset",
			Severity:           SeverityHigh,
			RiskFactors:        []string{"possible cardiac involvement"},
			ConfidenceGaps:     []string{"radiation to arm or jaw not stated", "history of heart disease unknown"},
			RedFlags:           []string{"chest pain can signal a cardiac emergency"},
			Recommendations: []Recommendation{
				{Type: RecommendationMedical, Title: "Seek emergency care immediately"},
			},
			Urgency: UrgencyEmergency,
			RawResponse: "Symptoms: chest pain, chest tightness\nSeverity: severe\n" +
				"Red flags: chest pain can signal a cardiac emergency\n" +
				"Urgency: emergency\n[simulated response]",
		},
	},
	{
		keywords: []string{"headache", "migraine", "head hurts"},
		analysis: Analysis{
			NormalizedSymptoms: []string{"headache", "nausea"},
			Duration:           "2 days",
			Severity:           SeverityHigh,
			RiskFactors:        []string{"dehydration", "prolonged screen exposure"},
			ConfidenceGaps:     []string{"medication history not provided"},
			RedFlags:           []string{"sudden severe headache warrants urgent review"},
			Recommendations: []Recommendation{
				{Type: RecommendationSelfCare, Title: "Rest in a dark, quiet room and hydrate"},
				{Type: RecommendationMedical, Title: "Consult a doctor if symptoms persist beyond 48 hours"},
			},
			Urgency: UrgencyHigh,
			RawResponse: "Symptoms: headache, nausea\nDuration: 2 days\nSeverity: severe\n" +
				"Urgency: high\n[simulated response]",
		},
	},
	{
		keywords: []string{"fever", "temperature", "chills"},
		analysis: Analysis{
			NormalizedSymptoms: []string{"fever", "chills", "fatigue"},
			Duration:           "Recent onset",
			Severity:           SeverityMedium,
			RiskFactors:        []string{"possible viral infection"},
			ConfidenceGaps:     []string{"measured temperature not provided"},
			RedFlags:           []string{},
			Recommendations: []Recommendation{
				{Type: RecommendationSelfCare, Title: "Rest, fluids, and monitor temperature"},
				{Type: RecommendationMedical, Title: "Consult a doctor if fever exceeds 39°C or lasts over 3 days"},
			},
			Urgency: UrgencyMedium,
			RawResponse: "Symptoms: fever, chills, fatigue\nSeverity: moderate\n" +
				"Urgency: medium\n[simulated response]",
		},
	},
	{
		keywords: []string{"cough", "sore throat", "cold"},
		analysis: Analysis{
			NormalizedSymptoms: []string{"cough", "sore throat"},
			Duration:           "Several days",
			Severity:           SeverityLow,
			RiskFactors:        []string{"seasonal upper respiratory infection"},
			ConfidenceGaps:     []string{"presence of fever unknown"},
			RedFlags:           []string{},
			Recommendations: []Recommendation{
				{Type: RecommendationSelfCare, Title: "Warm fluids and throat lozenges"},
				{Type: RecommendationSelfCare, Title: "Rest and monitor symptoms"},
			},
			Urgency: UrgencyLow,
			RawResponse: "Symptoms: cough, sore throat\nSeverity: mild\n" +
				"Urgency: low\n[simulated response]",
		},
	},
}

var cannedDefault = Analysis{
	NormalizedSymptoms: []string{"general malaise"},
	Duration:           "Unknown",
	Severity:           SeverityMedium,
	RiskFactors:        []string{},
	ConfidenceGaps:     []string{"complaint too vague for structured assessment"},
	RedFlags:           []string{},
	Recommendations: []Recommendation{
		{Type: RecommendationSelfCare, Title: "Monitor symptoms and note any changes"},
		{Type: RecommendationMedical, Title: "Consult a doctor if symptoms worsen"},
	},
	Urgency: UrgencyMedium,
	RawResponse: "Symptoms: general malaise\nSeverity: moderate\n" +
		"Urgency: medium\n[simulated response]",
}

// CannedAnalysis returns the deterministic simulated analysis for a
// query. The caller sets InferenceTimeMs; everything else is
// byte-identical across invocations with the same inputs.
func CannedAnalysis(query string, hasImage bool) *Analysis {
	if hasImage {
		a := cannedImageCase
		return &a
	}

	lower := strings.ToLower(query)
	for _, c := range cannedCases {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				a := c.analysis
				return &a
			}
		}
	}

	a := cannedDefault
	return &a
}
