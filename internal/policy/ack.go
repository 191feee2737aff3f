package policy

import (
	"regexp"
	"strings"
)

var (
	ackExact = map[string]bool{
		"y": true, "yes": true, "yep": true, "yeah": true, "ya": true,
		"ok": true, "okay": true, "k": true, "sure": true, "fine": true,
		"confirm": true, "confirmed": true, "approve": true, "approved": true,
		"proceed": true, "continue": true, "do it": true, "go ahead": true,
		"sounds good": true, "please do": true, "go for it": true,
	}
	ackPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(yes|yep|yeah|ok(ay)?|sure)\b`),
		regexp.MustCompile(`\bgo (ahead|for it)\b`),
		regexp.MustCompile(`\b(please )?(do|send|book|proceed|continue) (it|that|them)?\b$`),
		regexp.MustCompile(`\bsounds (good|great|right)\b`),
		regexp.MustCompile(`\bthat('s| is) (fine|right|correct)\b`),
	}
	refusalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^no\b`),
		regexp.MustCompile(`\b(don'?t|do not|stop|cancel|nevermind|never mind|forget it|hold off)\b`),
		regexp.MustCompile(`\bnot (now|yet)\b`),
	}
)

// IsAcknowledgement reports whether a user turn confirms an outstanding
// confirmation question. It is evaluated before any other intent
// classification whenever a pending plan exists, so request flags on the
// same turn cannot reinterpret an acknowledgement.
func IsAcknowledgement(text string) bool {
	in := normalize(text)
	if in == "" {
		return false
	}
	for _, re := range refusalPatterns {
		if re.MatchString(in) {
			return false
		}
	}
	if ackExact[in] {
		return true
	}
	// Long messages are treated as new requests, not confirmations.
	if len(strings.Fields(in)) > 8 {
		return false
	}
	for _, re := range ackPatterns {
		if re.MatchString(in) {
			return true
		}
	}
	return false
}

func normalize(text string) string {
	in := strings.ToLower(strings.TrimSpace(text))
	in = strings.Trim(in, ".!?,")
	return strings.Join(strings.Fields(in), " ")
}
