package sentiment

import (
	"strings"
	"time"
	"unicode"
)

// eventTTL is how long a critical event keeps influencing decisions.
const eventTTL = 30 * time.Minute

type eventRule struct {
	kind     EventKind
	severity EventSeverity
	impact   float64
	keywords []string
}

// Rules are checked in order; the first match per text wins, so the
// most dangerous kinds come first.
var eventRules = []eventRule{
	{EventHack, SeverityCritical, -9, []string{"hack", "hacked", "exploit", "breach", "stolen", "drained"}},
	{EventRegulatory, SeverityCritical, -7, []string{"ban", "banned", "crackdown", "criminal charges"}},
	{EventRegulatory, SeverityHigh, -4, []string{"sec", "lawsuit", "regulator", "regulatory", "subpoena"}},
	{EventPartnership, SeverityMedium, 6, []string{"partnership", "partners with", "integration with"}},
	{EventListing, SeverityMedium, 5, []string{"listing", "listed on", "lists"}},
	{EventWhaleMove, SeverityHigh, -3, []string{"whale", "large transfer", "moved from dormant"}},
}

// ExtractEvents scans a reading's raw texts for critical occurrences.
func ExtractEvents(reading Reading) []CriticalEvent {
	var events []CriticalEvent
	for _, text := range reading.Raw {
		lower := strings.ToLower(text)
		tokens := tokenSet(lower)
		for _, rule := range eventRules {
			if matchesAny(lower, tokens, rule.keywords) {
				events = append(events, CriticalEvent{
					Kind:        rule.kind,
					Severity:    rule.severity,
					Impact:      rule.impact,
					Source:      reading.Source,
					Timestamp:   reading.ProducedAt,
					Description: truncate(text, 200),
				})
				break
			}
		}
	}
	return events
}

// matchesAny matches multi-word keywords as substrings and single
// words on token boundaries, so "ban" never fires on "bank".
func matchesAny(text string, tokens map[string]bool, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(text, kw) {
				return true
			}
		} else if tokens[kw] {
			return true
		}
	}
	return false
}

func tokenSet(text string) map[string]bool {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// forcesStrongSell reports whether an event pre-empts normal signal
// derivation.
func forcesStrongSell(e CriticalEvent) bool {
	if e.Kind == EventHack {
		return true
	}
	return e.Kind == EventRegulatory && e.Severity == SeverityCritical
}

// pruneExpired drops events older than the TTL.
func pruneExpired(events []CriticalEvent, now time.Time) []CriticalEvent {
	out := events[:0]
	for _, e := range events {
		if now.Sub(e.Timestamp) <= eventTTL {
			out = append(out, e)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
