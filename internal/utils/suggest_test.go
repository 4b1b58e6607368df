package utils

import (
	"reflect"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"auth", "auth", 0},
		{"Auth", "auth", 0},
		{"auth", "oauth", 1},
		{"kitten", "sitting", 3},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.want {
			t.Errorf("Distance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFuzzyMatch(t *testing.T) {
	if !FuzzyMatch("ath", "auth") {
		t.Error("ath should match auth")
	}
	if FuzzyMatch("hta", "auth") {
		t.Error("hta should not match auth")
	}
	if !FuzzyMatch("", "anything") {
		t.Error("empty source matches everything")
	}
}

func TestSuggest(t *testing.T) {
	candidates := []string{"auth", "billing", "oauth", "infra", "backlog"}
	got := Suggest("auht", candidates, 2, 3)
	if len(got) == 0 || got[0] != "auth" {
		t.Errorf("Suggest(auht) = %v, want auth first", got)
	}
	if got := Suggest("bil", candidates, 1, 0); !reflect.DeepEqual(got, []string{"billing"}) {
		t.Errorf("Suggest(bil) = %v, want [billing]", got)
	}
	if got := Suggest("zzz", candidates, 1, 0); len(got) != 0 {
		t.Errorf("Suggest(zzz) = %v, want none", got)
	}
	if got := Suggest("auth", candidates, 2, 0); len(got) != 1 || got[0] != "oauth" {
		t.Errorf("exact match should be skipped, got %v", got)
	}
}
