package usage

// Plan names as stored on the user record.
const (
	PlanFree     = "free"
	PlanStarter  = "starter"
	PlanStandard = "standard"
	PlanPro      = "pro"
)

var planLimits = map[string]map[string]int{
	PlanFree: {
		FeatureResumeAnalyses: 2,
		FeatureMockInterviews: 0,
		FeaturePDFDownloads:   5,
		FeatureAIEnhance:      5,
	},
	PlanStarter: {
		FeatureResumeAnalyses: 5,
		FeatureMockInterviews: 1,
		FeaturePDFDownloads:   20,
		FeatureAIEnhance:      20,
	},
	PlanStandard: {
		FeatureResumeAnalyses: 10,
		FeatureMockInterviews: 3,
		FeaturePDFDownloads:   50,
		FeatureAIEnhance:      50,
	},
	PlanPro: {
		FeatureResumeAnalyses: 10,
		FeatureMockInterviews: 5,
		FeaturePDFDownloads:   9999,
		FeatureAIEnhance:      9999,
	},
}

var featureOrder = []string{
	FeatureResumeAnalyses,
	FeatureMockInterviews,
	FeaturePDFDownloads,
	FeatureAIEnhance,
}

// Features returns the meterable feature names in a stable order.
func Features() []string {
	out := make([]string, len(featureOrder))
	copy(out, featureOrder)
	return out
}

// KnownFeature reports whether name is a meterable feature.
func KnownFeature(name string) bool {
	_, ok := planLimits[PlanFree][name]
	return ok
}

// KnownPlan reports whether name is a sellable plan tier.
func KnownPlan(name string) bool {
	_, ok := planLimits[name]
	return ok
}

// NormalizePlan maps unknown or empty plan names to the free tier.
func NormalizePlan(plan string) string {
	if _, ok := planLimits[plan]; ok {
		return plan
	}
	return PlanFree
}

// PlanLimits returns the per-feature limits for a plan. Unknown plans fall
// back to free so a bad plan value never unlocks anything.
func PlanLimits(plan string) map[string]int {
	limits := planLimits[NormalizePlan(plan)]
	out := make(map[string]int, len(limits))
	for k, v := range limits {
		out[k] = v
	}
	return out
}
