package namepattern

// Report aggregates match statistics across a corpus of filenames. It's a
// reporting utility over the live rule set, not part of the scan path.
type Report struct {
	Total   int
	Matched int
	ByRule  map[string]int
}

// Coverage returns the fraction of filenames matched by any rule, 0..1.
func (r *Report) Coverage() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Matched) / float64(r.Total)
}

// Analyze runs every filename through the rule set and tallies which rule
// (if any) matched it first.
func Analyze(filenames []string) *Report {
	report := &Report{ByRule: make(map[string]int, len(rules))}
	for _, name := range RuleNames() {
		report.ByRule[name] = 0
	}

	for _, filename := range filenames {
		report.Total++
		if _, rule, ok := matchWithRule(filename); ok {
			report.Matched++
			report.ByRule[rule]++
		}
	}

	return report
}
