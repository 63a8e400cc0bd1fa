package queue

import (
	"testing"
)

func TestScoreEvent_ToMapCarriesTypeField(t *testing.T) {
	event := NewScoreChangedEvent(900, 50, 70)

	values, err := event.ToMap()
	if err != nil {
		t.Fatalf("ToMap failed: %v", err)
	}
	if values["type"] != EventScoreChanged {
		t.Errorf("expected bare type field %q, got %v", EventScoreChanged, values["type"])
	}
	if _, ok := values["data"].(string); !ok {
		t.Fatalf("expected JSON data field, got %T", values["data"])
	}
}

func TestParseScoreEvent_RoundTrip(t *testing.T) {
	original := NewScoreChangedEvent(900, 50, 70)
	values, err := original.ToMap()
	if err != nil {
		t.Fatalf("ToMap failed: %v", err)
	}

	parsed, err := ParseScoreEvent(values)
	if err != nil {
		t.Fatalf("ParseScoreEvent failed: %v", err)
	}
	if parsed != original {
		t.Errorf("round trip mismatch: got %+v, want %+v", parsed, original)
	}
}

func TestParseScoreEvent_MissingDataField(t *testing.T) {
	_, err := ParseScoreEvent(map[string]interface{}{"type": EventScoreChanged})
	if err == nil {
		t.Fatal("expected error for missing data field")
	}
}

func TestParseScoreEvent_MalformedJSON(t *testing.T) {
	_, err := ParseScoreEvent(map[string]interface{}{"data": "{not json"})
	if err == nil {
		t.Fatal("expected error for malformed data")
	}
}
