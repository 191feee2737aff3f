package policy

import "testing"

func TestIsAcknowledgement(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"yes", true},
		{"Yes!", true},
		{"ok", true},
		{"okay, sounds good", true},
		{"sure, go ahead", true},
		{"go for it", true},
		{"please do", true},
		{"that's fine", true},
		{"no", false},
		{"no, don't send it", false},
		{"actually, cancel that", false},
		{"not yet", false},
		{"hold off for now", false},
		{"", false},
		{"what's the weather in Turin tomorrow?", false},
		{"can you also look up train times and then email Marta about it", false},
	}
	for _, tc := range cases {
		if got := IsAcknowledgement(tc.text); got != tc.want {
			t.Errorf("IsAcknowledgement(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestDecideOrchestration(t *testing.T) {
	cases := []struct {
		text         string
		needsPlan    bool
		confirmation bool
	}{
		{"what time is it in Tokyo", false, false},
		{"find a pizzeria near the office and then book a table for four", true, true},
		{"look up the forecast and then summarize it for me", true, false},
		{"email the team the meeting notes", true, true},
		{"search for the report", false, false},
		{"", false, false},
	}
	for _, tc := range cases {
		d := DecideOrchestration(tc.text)
		if d.NeedsPlan != tc.needsPlan || d.RequiresConfirmation != tc.confirmation {
			t.Errorf("DecideOrchestration(%q) = {plan:%v confirm:%v}, want {plan:%v confirm:%v}",
				tc.text, d.NeedsPlan, d.RequiresConfirmation, tc.needsPlan, tc.confirmation)
		}
	}
}
