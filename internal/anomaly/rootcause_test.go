package anomaly

import (
	"strings"
	"testing"
)

func TestSuggestionTable_KnownMetric(t *testing.T) {
	table := DefaultSuggestions()

	hint := table.Suggest("deadlocks", DirectionAbove)
	if !strings.Contains(hint, "Deadlock") {
		t.Errorf("expected deadlock-specific hint, got %q", hint)
	}

	// Same metric, unmapped direction falls through to the generic hint
	if got := table.Suggest("deadlocks", DirectionBelow); !strings.Contains(got, "Investigate recent") {
		t.Errorf("expected generic hint for unmapped direction, got %q", got)
	}
}

func TestSuggestionTable_UnknownMetric(t *testing.T) {
	table := DefaultSuggestions()
	hint := table.Suggest("nonexistent_metric", DirectionAbove)
	if !strings.Contains(hint, "Investigate recent") {
		t.Errorf("expected generic hint, got %q", hint)
	}
}

func TestSuggestionTable_Extension(t *testing.T) {
	table := SuggestionTable{
		{Metric: "custom_metric", Direction: DirectionAbove}: "Check the custom subsystem.",
	}
	if got := table.Suggest("custom_metric", DirectionAbove); got != "Check the custom subsystem." {
		t.Errorf("expected injected hint, got %q", got)
	}
}

func TestDefaultSuggestions_CoverDirections(t *testing.T) {
	table := DefaultSuggestions()
	for key, hint := range table {
		if hint == "" {
			t.Errorf("%s/%s: empty hint", key.Metric, key.Direction)
		}
		if key.Direction != DirectionAbove && key.Direction != DirectionBelow {
			t.Errorf("%s: invalid direction %s", key.Metric, key.Direction)
		}
	}
}
