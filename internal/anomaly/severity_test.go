package anomaly

import "testing"

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		absSigma  float64
		want      Severity
		anomalous bool
	}{
		{5.2, SeverityCritical, true},
		{4.0, SeverityCritical, true},
		{3.5, SeverityHigh, true},
		{3.0, SeverityHigh, true},
		{2.6, SeverityMedium, true},
		{2.5, SeverityMedium, true},
		{2.1, SeverityLow, true},
		{2.0, SeverityLow, true},
		{1.99, "", false},
		{0, "", false},
	}

	for _, tt := range tests {
		got, anomalous := classifySeverity(tt.absSigma)
		if anomalous != tt.anomalous {
			t.Errorf("sigma %.2f: expected anomalous=%v, got %v", tt.absSigma, tt.anomalous, anomalous)
		}
		if got != tt.want {
			t.Errorf("sigma %.2f: expected %q, got %q", tt.absSigma, tt.want, got)
		}
	}
}

func TestParseFallbacks(t *testing.T) {
	if got := ParseSeverity("high"); got != SeverityHigh {
		t.Errorf("expected high, got %s", got)
	}
	if got := ParseSeverity("HIGH"); got != SeverityLow {
		t.Errorf("expected unknown casing to default to low, got %s", got)
	}
	if got := ParseSeverity(""); got != SeverityLow {
		t.Errorf("expected empty severity to default to low, got %s", got)
	}
	if got := ParseAnomalyType("dip"); got != AnomalySpike {
		t.Errorf("expected unknown type to default to spike, got %s", got)
	}
	if got := ParseDirection("below"); got != DirectionBelow {
		t.Errorf("expected below, got %s", got)
	}
	if got := ParseDirection("diagonal"); got != DirectionAbove {
		t.Errorf("expected unknown direction to default to above, got %s", got)
	}
}
