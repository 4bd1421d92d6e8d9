// Package address extracts coarse place labels (district, street) from a
// single free-text address string.
//
// This is a heuristic, not a gazetteer lookup. It knows nothing about real
// administrative boundaries; it relies on the comma-separated layout of
// reverse-geocoded addresses ("<street> <number>, <district>, <city>,
// <country>") and on a stoplist of generic tokens. The default rules are
// tuned for Peruvian addresses. Every district and street aggregate depends
// on the exact output of these rules, so changing the stoplist or its order
// changes every ranking built on top of it.
package address

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Unknown is the label returned when nothing usable can be extracted.
const Unknown = "Unknown"

// Extractor derives place labels from an address. Implementations must be
// safe for concurrent use and must never fail: unparsable input yields
// Unknown.
type Extractor interface {
	District(address string) string
	Street(address string) string
}

// Rules parameterize the heuristics.
type Rules struct {
	// Stoplist holds lowercase tokens; a district candidate containing any of
	// them (case-insensitively, as a substring) is rejected.
	Stoplist []string
	// MaxSegments bounds how many leading comma-separated segments are
	// examined, including the street segment at index 0.
	MaxSegments int
	// MinLength is the minimum number of characters of an accepted label.
	MinLength int
}

// DefaultStoplist holds country, region and street-type words plus block
// and lot abbreviations common in Peruvian addresses.
var DefaultStoplist = []string{
	"perú",
	"peru",
	"región",
	"region",
	"provincia",
	"departamento",
	"av.",
	"avenida",
	"jr.",
	"jirón",
	"calle",
	"mz.",
	"mza",
	"lt.",
	"lote",
}

// DefaultRules returns the rules the aggregates are specified against.
func DefaultRules() Rules {
	stoplist := make([]string, len(DefaultStoplist))
	copy(stoplist, DefaultStoplist)
	return Rules{
		Stoplist:    stoplist,
		MaxSegments: 3,
		MinLength:   4,
	}
}

// houseNumber matches the first run of digits and everything after it.
var houseNumber = regexp.MustCompile(`\d.*$`)

// Heuristics is the default Extractor.
type Heuristics struct {
	rules Rules
}

var _ Extractor = (*Heuristics)(nil)

// New builds a Heuristics from rules. Stoplist entries are lowercased and
// trimmed; zero MaxSegments or MinLength fall back to the defaults.
func New(rules Rules) *Heuristics {
	defaults := DefaultRules()
	if rules.MaxSegments <= 0 {
		rules.MaxSegments = defaults.MaxSegments
	}
	if rules.MinLength <= 0 {
		rules.MinLength = defaults.MinLength
	}
	stoplist := make([]string, 0, len(rules.Stoplist))
	for _, token := range rules.Stoplist {
		token = strings.ToLower(strings.TrimSpace(token))
		if token != "" {
			stoplist = append(stoplist, token)
		}
	}
	rules.Stoplist = stoplist
	return &Heuristics{rules: rules}
}

// NewDefault is New(DefaultRules()).
func NewDefault() *Heuristics {
	return New(DefaultRules())
}

// Rules returns a copy of the active rules.
func (h *Heuristics) Rules() Rules {
	r := h.rules
	r.Stoplist = append([]string(nil), h.rules.Stoplist...)
	return r
}

// District returns the district label of address.
//
// Segments at index 1 up to MaxSegments-1 are scanned in order; the first
// one that contains no stoplist token, is not purely numeric (postal codes)
// and is long enough is returned trimmed. Failing that, segment 1 is
// returned if it is long enough, whatever it contains.
func (h *Heuristics) District(address string) string {
	if strings.TrimSpace(address) == "" {
		return Unknown
	}

	segments := splitSegments(address)
	limit := min(len(segments), h.rules.MaxSegments)
	for i := 1; i < limit; i++ {
		seg := segments[i]
		if h.stoplisted(seg) || numericOnly(seg) {
			continue
		}
		if h.longEnough(seg) {
			return seg
		}
	}

	if len(segments) >= 2 && h.longEnough(segments[1]) {
		return segments[1]
	}
	return Unknown
}

// Street returns the street label of address: the first segment with the
// house number (first digit onwards) removed.
func (h *Heuristics) Street(address string) string {
	if strings.TrimSpace(address) == "" {
		return Unknown
	}

	first, _, _ := strings.Cut(address, ",")
	street := strings.TrimSpace(houseNumber.ReplaceAllString(first, ""))
	if h.longEnough(street) {
		return street
	}
	return Unknown
}

func (h *Heuristics) stoplisted(segment string) bool {
	lower := strings.ToLower(segment)
	for _, token := range h.rules.Stoplist {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func (h *Heuristics) longEnough(label string) bool {
	return utf8.RuneCountInString(label) >= h.rules.MinLength
}

func splitSegments(address string) []string {
	parts := strings.Split(address, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// numericOnly reports whether s consists only of digits and whitespace.
func numericOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
