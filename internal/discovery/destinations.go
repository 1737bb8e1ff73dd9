package discovery

import "fmt"

const (
	DefaultMaxDestinationIterations = 2
	destinationRefinementTag        = "REFINEMENT_FOR_DESTINATIONS"
	destinationCount                = 3
)

func destinationCycle(maxIters int) cycleDef[[]Destination] {
	return cycleDef[[]Destination]{
		kind:     "destinations",
		tag:      destinationRefinementTag,
		maxIters: maxIters,
		prompt:   destinationPrompt,
		parse:    ParseDestinations,
		precheck: PrecheckDestinations,
		rubric: func(info, raw string, _ []Destination) string {
			return destinationRubric(info, raw)
		},
	}
}

// padDestinations fills a short set up to three entries with placeholders.
// It reports whether anything was added.
func padDestinations(ds []Destination) ([]Destination, bool) {
	if len(ds) >= destinationCount {
		return ds[:destinationCount], false
	}
	out := append([]Destination(nil), ds...)
	for i := len(out); i < destinationCount; i++ {
		out = append(out, Destination{
			Title:   fmt.Sprintf("Option %d", i+1),
			Details: "No destination could be generated for this slot. Ask for new suggestions to fill it.",
		})
	}
	return out, true
}
