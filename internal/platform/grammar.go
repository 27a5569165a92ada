package platform

import (
	"fmt"
	"regexp"
	"strings"
)

// Match is the outcome of parsing one object name against a band grammar.
type Match struct {
	SubID   string
	Format  string
	matched bool
}

// Matched reports whether the name belonged to a tracked band.
func (m Match) Matched() bool {
	return m.matched
}

// Grammar recognizes per-band asset names for one platform.
type Grammar struct {
	re        *regexp.Regexp
	exclude   []string
	bandIdx   int
	formatIdx int
}

// NewGrammar compiles pattern after substituting {{bands}} with an alternation
// of the quoted band names. The pattern must define named groups "band" and
// "format". Names containing any exclude substring never match.
func NewGrammar(pattern string, bands []string, exclude []string) (*Grammar, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("grammar requires at least one band")
	}
	quoted := make([]string, len(bands))
	for i, band := range bands {
		quoted[i] = regexp.QuoteMeta(band)
	}
	expanded := strings.ReplaceAll(pattern, "{{bands}}", strings.Join(quoted, "|"))
	re, err := regexp.Compile(expanded)
	if err != nil {
		return nil, fmt.Errorf("compile file pattern: %w", err)
	}
	g := &Grammar{re: re, exclude: exclude, bandIdx: re.SubexpIndex("band"), formatIdx: re.SubexpIndex("format")}
	if g.bandIdx < 0 || g.formatIdx < 0 {
		return nil, fmt.Errorf("file pattern %q must define band and format groups", pattern)
	}
	return g, nil
}

// Parse classifies an object name.
func (g *Grammar) Parse(name string) Match {
	for _, marker := range g.exclude {
		if marker != "" && strings.Contains(name, marker) {
			return Match{}
		}
	}
	groups := g.re.FindStringSubmatch(name)
	if groups == nil {
		return Match{}
	}
	return Match{SubID: groups[g.bandIdx], Format: groups[g.formatIdx], matched: true}
}
