package discovery

import (
	"regexp"
	"strings"

	"destination-discovery/internal/models"
)

// DefaultMaxQuestions caps every question queue.
const DefaultMaxQuestions = 6

var (
	questionLine     = regexp.MustCompile(`^\d+\.\s+(.+\?)$`)
	destinationStart = regexp.MustCompile(`^\d+\.`)
)

// Destination is one parsed recommendation block. Title has the
// "City, Country" shape.
type Destination struct {
	Title   string `json:"title"`
	Details string `json:"details"`
}

// City is the title text before the first comma.
func (d Destination) City() string {
	city, _, _ := strings.Cut(d.Title, ",")
	return strings.TrimSpace(city)
}

// Country is the title text after the first comma, empty when there is none.
func (d Destination) Country() string {
	_, country, _ := strings.Cut(d.Title, ",")
	return strings.TrimSpace(country)
}

func (d Destination) Location() models.Location {
	return models.Location{Name: d.City(), Country: d.Country(), Description: d.Details}
}

// Locations converts parsed destinations to their stored form.
func Locations(ds []Destination) []models.Location {
	out := make([]models.Location, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Location())
	}
	return out
}

// ParseQuestions returns the numbered lines of text that end in a question
// mark, without their numbers, deduplicated case-insensitively in first-seen
// order and cut to maxN. maxN <= 0 means DefaultMaxQuestions.
func ParseQuestions(text string, maxN int) []string {
	if maxN <= 0 {
		maxN = DefaultMaxQuestions
	}

	questions := []string{}
	seen := map[string]struct{}{}
	for _, line := range strings.Split(text, "\n") {
		m := questionLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		q := strings.TrimSpace(m[1])
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		questions = append(questions, q)
		if len(questions) == maxN {
			break
		}
	}
	return questions
}

// ParseDestinations splits text into numbered blocks and returns at most the
// first three whose title contains a comma. Shortfalls are not padded.
func ParseDestinations(text string) []Destination {
	var blocks [][]string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if destinationStart.MatchString(trimmed) {
			blocks = append(blocks, []string{destinationStart.ReplaceAllString(trimmed, "")})
			continue
		}
		if len(blocks) > 0 {
			blocks[len(blocks)-1] = append(blocks[len(blocks)-1], trimmed)
		}
	}

	out := []Destination{}
	for _, block := range blocks {
		d, ok := parseBlock(block)
		if !ok {
			continue
		}
		out = append(out, d)
		if len(out) == 3 {
			break
		}
	}
	return out
}

func parseBlock(lines []string) (Destination, bool) {
	var nonEmpty []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	if len(nonEmpty) == 0 {
		return Destination{}, false
	}

	title := strings.TrimSpace(strings.Trim(nonEmpty[0], "*_ "))
	if !strings.Contains(title, ",") {
		return Destination{}, false
	}
	return Destination{
		Title:   title,
		Details: strings.Join(nonEmpty[1:], " "),
	}, true
}
