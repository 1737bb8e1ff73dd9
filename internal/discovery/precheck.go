package discovery

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	redundancyThreshold    = 0.7
	minJustificationTokens = 5
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s]+`)

// PrecheckQuestions returns the mechanical problems of a question set. An
// empty result means the set may go to the model evaluator.
func PrecheckQuestions(questions []string) []string {
	if len(questions) == 0 {
		return []string{"no parseable questions"}
	}

	var issues []string
	if len(questions) > DefaultMaxQuestions {
		issues = append(issues, fmt.Sprintf("too many questions: %d (at most %d)", len(questions), DefaultMaxQuestions))
	}
	for i, q := range questions {
		if !strings.HasSuffix(strings.TrimSpace(q), "?") {
			issues = append(issues, fmt.Sprintf("question %d does not end with a question mark", i+1))
		}
	}

	sets := make([]map[string]struct{}, len(questions))
	for i, q := range questions {
		sets[i] = tokenSet(q)
	}
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			if redundant(sets[i], sets[j]) {
				return append(issues, fmt.Sprintf("Redundant questions %d and %d: %q overlaps %q", i+1, j+1, questions[i], questions[j]))
			}
		}
	}
	return issues
}

// PrecheckDestinations returns the mechanical problems of a destination set.
func PrecheckDestinations(items []Destination) []string {
	if len(items) != 3 {
		return []string{"Did not produce exactly 3 destinations."}
	}

	var issues []string
	cities := map[string]struct{}{}
	for _, d := range items {
		cities[strings.ToLower(d.City())] = struct{}{}
	}
	if len(cities) < 3 {
		issues = append(issues, "Destinations are not 3 distinct cities.")
	}

	// The title counts towards the justification: "Tokyo, Japan" followed by
	// "Modern and historic." is an acceptable item.
	for i, d := range items {
		if len(strings.Fields(d.Title+" "+d.Details)) < minJustificationTokens {
			issues = append(issues, fmt.Sprintf("Destination %d (%s): justification too short.", i+1, d.Title))
			break
		}
	}
	return issues
}

func tokenSet(s string) map[string]struct{} {
	norm := nonAlphanumeric.ReplaceAllString(strings.ToLower(s), "")
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(norm) {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// redundant reports a pair whose token overlap reaches the threshold, or where
// one question's tokens are contained in the other's ("Budget?" and
// "Budget range?").
func redundant(a, b map[string]struct{}) bool {
	if jaccard(a, b) >= redundancyThreshold {
		return true
	}
	return subset(a, b) || subset(b, a)
}

func subset(small, big map[string]struct{}) bool {
	if len(small) == 0 {
		return false
	}
	for tok := range small {
		if _, ok := big[tok]; !ok {
			return false
		}
	}
	return true
}
