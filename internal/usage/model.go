package usage

// Feature names meterable operations. Values match the keys stored per user.
const (
	FeatureResumeAnalyses = "resumeAnalyses"
	FeatureMockInterviews = "mockInterviews"
	FeaturePDFDownloads   = "pdfDownloads"
	FeatureAIEnhance      = "aiEnhance"
)

// FeatureUsage is one feature's consumption against its limit.
type FeatureUsage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// Remaining reports how many units are left, never negative.
func (f FeatureUsage) Remaining() int {
	r := f.Limit - f.Used
	if r < 0 {
		return 0
	}
	return r
}

// Access is the result of an access check for a single feature.
type Access struct {
	Feature   string `json:"feature"`
	Allowed   bool   `json:"allowed"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// Snapshot is a user's full usage state.
type Snapshot struct {
	Plan     string                  `json:"plan"`
	Features map[string]FeatureUsage `json:"features"`
}
