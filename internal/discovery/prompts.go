package discovery

import (
	"fmt"
	"strings"
)

const (
	plannerRole  = "You are a travel-planning assistant."
	reviewerRole = "You review the output of a travel-planning assistant and answer with a single JSON object."

	gradeFormat = `Answer with JSON only, in this form: {"grade": "pass" or "fail", "improvement_notes": ["short, actionable note", ...]}`
)

func questionPrompt(info string, maxQuestions int) string {
	return fmt.Sprintf(`What the traveller has told us so far:
%s

Write the clarifying questions you still need answered to pin down their ideal trip.
Number them 1., 2., 3. and so on, one question per line, every line ending with a question mark.
Ask no more than %d questions and write nothing else.`, info, maxQuestions)
}

func questionRubric(info string, questions []string) string {
	var b strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return fmt.Sprintf(`Traveller context:
%s

Proposed clarifying questions:
%s
Grade the set as "pass" only if every question is relevant to choosing a destination, no two questions ask the same thing, and nothing already stated by the traveller is asked again.
%s`, info, b.String(), gradeFormat)
}

func destinationPrompt(info string) string {
	return fmt.Sprintf(`What we know about the traveller:
%s

Return exactly THREE destinations as a numbered list 1., 2., 3.
Each item starts with "City, Country" on its own line, followed by one or two short lines on why it suits this traveller.
Do not write anything before or after the list.`, info)
}

func destinationRubric(info, raw string) string {
	return fmt.Sprintf(`Traveller context:
%s

Proposed destinations:
%s

Grade the three destinations on specificity (real, named places), fit with every stated constraint such as budget, season and travel style, and diversity between the three options.
Grade "pass" only if all of these hold.
%s`, info, raw, gradeFormat)
}

// appendRefinement adds a tagged block of reviewer notes to the accumulated info.
func appendRefinement(info, tag string, notes []string) string {
	var b strings.Builder
	b.WriteString(info)
	b.WriteString("\n\n")
	b.WriteString(tag)
	b.WriteString(":")
	for _, n := range notes {
		b.WriteString("\n- ")
		b.WriteString(n)
	}
	return b.String()
}
