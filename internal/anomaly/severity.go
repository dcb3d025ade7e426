package anomaly

// DetectionThreshold is the minimum |sigma| at which a value counts
// as anomalous at all
const DetectionThreshold = 2.0

// severityThresholds maps a minimum |sigma| to a severity, evaluated
// top to bottom. Kept as an ordered table so thresholds can be tuned
// and tested without touching detection logic.
var severityThresholds = []struct {
	MinSigma float64
	Severity Severity
}{
	{4.0, SeverityCritical},
	{3.0, SeverityHigh},
	{2.5, SeverityMedium},
	{2.0, SeverityLow},
}

// classifySeverity returns the severity for an absolute sigma, and
// false when the deviation is below the detection threshold
func classifySeverity(absSigma float64) (Severity, bool) {
	for _, t := range severityThresholds {
		if absSigma >= t.MinSigma {
			return t.Severity, true
		}
	}
	return "", false
}
