package models

import (
	"encoding/json"
	"testing"
)

func TestFundingCallSettings_RoundTripKeepsExtraKeys(t *testing.T) {
	var s FundingCallSettings
	if err := json.Unmarshal([]byte(`{"favorite":true,"priority":"high","color":"red","notes":null}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Favorite == nil || !*s.Favorite {
		t.Fatal("expected favorite=true")
	}
	if s.Notes != nil {
		t.Fatalf("null notes must stay unset, got %q", *s.Notes)
	}
	if s.Extra["color"] != "red" {
		t.Fatalf("expected extra key to survive, got %#v", s.Extra)
	}

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]interface{}
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal back: %v", err)
	}
	if back["color"] != "red" || back["priority"] != "high" || back["favorite"] != true {
		t.Fatalf("unexpected encoding: %s", out)
	}
	if _, ok := back["notes"]; ok {
		t.Fatalf("unset notes must be omitted: %s", out)
	}
}

func TestFundingCallSettings_MergeOverridesOnlySetFields(t *testing.T) {
	yes, no := true, false
	notes := "call back in May"
	base := FundingCallSettings{Favorite: &yes, Notes: &notes, Extra: map[string]interface{}{"a": 1.0}}

	merged := base.Merge(FundingCallSettings{Favorite: &no, Extra: map[string]interface{}{"b": 2.0}})

	if merged.Favorite == nil || *merged.Favorite {
		t.Fatal("expected favorite to be overridden to false")
	}
	if merged.Notes == nil || *merged.Notes != notes {
		t.Fatal("expected notes to be kept")
	}
	if merged.Extra["a"] != 1.0 || merged.Extra["b"] != 2.0 {
		t.Fatalf("expected extras merged, got %#v", merged.Extra)
	}
	if _, ok := base.Extra["b"]; ok {
		t.Fatal("merge must not mutate the receiver's extras")
	}
}
