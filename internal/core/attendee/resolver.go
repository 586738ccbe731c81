// Package attendee maps free-text attendee names to email addresses.
package attendee

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	DefaultDomain    = "example.com"
	DefaultThreshold = 0.8
)

type Record struct {
	PrimaryName string   `json:"primary_name" yaml:"primary_name" toml:"primary_name"`
	Email       string   `json:"email" yaml:"email" toml:"email"`
	Aliases     []string `json:"aliases" yaml:"aliases" toml:"aliases"`
	FirstName   string   `json:"first_name,omitempty" yaml:"first_name,omitempty" toml:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty" yaml:"last_name,omitempty" toml:"last_name,omitempty"`
}

// Table is the attendee directory read at startup.
type Table struct {
	Attendees      []Record `json:"attendees" yaml:"attendees" toml:"attendees"`
	DefaultDomain  string   `json:"default_domain" yaml:"default_domain" toml:"default_domain"`
	FuzzyThreshold float64  `json:"fuzzy_match_threshold" yaml:"fuzzy_match_threshold" toml:"fuzzy_match_threshold"`
}

type Method string

const (
	MethodExact     Method = "exact"
	MethodFuzzy     Method = "fuzzy"
	MethodGenerated Method = "generated"
)

type Match struct {
	Name   string
	Email  string
	Method Method
	// Score is the similarity ratio for fuzzy matches and 1 for exact ones.
	Score  float64
	Record *Record
}

// Resolver is safe for concurrent use; it never mutates its table.
type Resolver struct {
	records   []Record
	domain    string
	threshold float64
}

func NewResolver(t Table) *Resolver {
	r := &Resolver{
		records:   append([]Record(nil), t.Attendees...),
		domain:    t.DefaultDomain,
		threshold: t.FuzzyThreshold,
	}
	if r.domain == "" {
		r.domain = DefaultDomain
	}
	if r.threshold <= 0 {
		r.threshold = DefaultThreshold
	}
	return r
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func keys(rec Record) []string {
	out := make([]string, 0, len(rec.Aliases)+1)
	if rec.PrimaryName != "" {
		out = append(out, normalize(rec.PrimaryName))
	}
	for _, a := range rec.Aliases {
		if a = normalize(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Resolve maps name to an email: exact match on primary name or alias first,
// then the best fuzzy match at or above the threshold, then a generated
// address on the default domain.
func (r *Resolver) Resolve(name string) Match {
	key := normalize(name)
	if key == "" {
		return Match{Name: name}
	}

	for i := range r.records {
		for _, k := range keys(r.records[i]) {
			if k == key {
				return Match{Name: name, Email: r.records[i].Email, Method: MethodExact, Score: 1, Record: &r.records[i]}
			}
		}
	}

	best, bestScore := -1, 0.0
	for i := range r.records {
		for _, k := range keys(r.records[i]) {
			if s := Ratio(key, k); s > bestScore {
				best, bestScore = i, s
			}
		}
	}
	if best >= 0 && bestScore >= r.threshold {
		return Match{Name: name, Email: r.records[best].Email, Method: MethodFuzzy, Score: bestScore, Record: &r.records[best]}
	}

	return Match{Name: name, Email: r.generate(key), Method: MethodGenerated, Score: bestScore}
}

// Emails resolves names in order, skipping blanks and duplicate addresses.
func (r *Resolver) Emails(names []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, n := range names {
		m := r.Resolve(n)
		if m.Email == "" || seen[m.Email] {
			continue
		}
		seen[m.Email] = true
		out = append(out, m.Email)
	}
	return out
}

func (r *Resolver) generate(key string) string {
	var tokens []string
	for _, f := range strings.Fields(key) {
		if t := alnum(f); t != "" {
			tokens = append(tokens, t)
		}
	}
	switch len(tokens) {
	case 0:
		return ""
	case 1:
		return tokens[0] + "@" + r.domain
	default:
		return tokens[0] + "." + tokens[len(tokens)-1] + "@" + r.domain
	}
}

func alnum(s string) string {
	return strings.Map(func(c rune) rune {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			return unicode.ToLower(c)
		}
		return -1
	}, s)
}

// Ratio is 1 - levenshtein(a, b) / max(len(a), len(b)), measured in runes.
func Ratio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
