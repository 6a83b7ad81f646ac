// Package namepattern recovers author/title pairs from common book filename
// conventions. It's the fallback when a file carries no embedded metadata.
package namepattern

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Match is a recovered author/title pair.
type Match struct {
	Author string
	Title  string
}

// Rule pairs a name (for coverage reporting) with a recognizer. Every
// recognizer captures exactly two groups: author then title.
type Rule struct {
	Name string
	re   *regexp.Regexp
}

// rules are tried in order; separator conventions win over bracket ones.
// CJK punctuation (full-width dashes, 【】, （）, 「」) is part of the rule
// set itself, not a preprocessing step.
var rules = []*Rule{
	{Name: "dash", re: regexp.MustCompile(`^\s*([^-－—_\[［【（(「\]］】）)」]+?)\s*[-－—]\s*(\S.*?)\s*$`)},
	{Name: "underscore", re: regexp.MustCompile(`^\s*([^-－—_\[［【（(「\]］】）)」]+?)\s*_\s*(\S.*?)\s*$`)},
	{Name: "square-bracket", re: regexp.MustCompile(`^\s*[\[［]\s*([^\]］]+?)\s*[\]］]\s*(\S.*?)\s*$`)},
	{Name: "cjk-bracket", re: regexp.MustCompile(`^\s*[【（(「]\s*([^】）)」]+?)\s*[】）)」]\s*(\S.*?)\s*$`)},
}

func (r *Rule) match(stem string) (*Match, bool) {
	groups := r.re.FindStringSubmatch(stem)
	if groups == nil {
		return nil, false
	}
	author := strings.TrimSpace(groups[1])
	title := strings.TrimSpace(groups[2])
	if author == "" || title == "" {
		return nil, false
	}
	return &Match{Author: author, Title: title}, true
}

// MatchFilename tries each rule in priority order against the filename with
// its extension stripped and returns the first match.
func MatchFilename(filename string) (*Match, bool) {
	m, _, ok := matchWithRule(filename)
	return m, ok
}

func matchWithRule(filename string) (*Match, string, bool) {
	stem := Stem(filename)
	for _, rule := range rules {
		if m, ok := rule.match(stem); ok {
			return m, rule.Name, true
		}
	}
	return nil, "", false
}

// Stem returns the filename without its directory or extension.
func Stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RuleNames returns the rule names in priority order.
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}
