package discovery

import (
	"fmt"
	"strings"

	"destination-discovery/internal/common/metrics"
	"destination-discovery/internal/models"
)

type CommitmentResult int

const (
	CommitmentNone CommitmentResult = iota
	CommitmentAmbiguous
	CommitmentConfirmed
)

func (r CommitmentResult) String() string {
	switch r {
	case CommitmentAmbiguous:
		return "ambiguous"
	case CommitmentConfirmed:
		return "confirmed"
	default:
		return "none"
	}
}

const (
	tellMeMoreReply = "I'd be happy to tell you more about any of these destinations! " +
		"Which one interests you most, or would you like me to suggest different options?"
	whichOneReply = "Great! Which of the three destinations would you like to go with? " +
		"Just let me know the name or number (1, 2, or 3)."
	confirmedReplyFormat = "Excellent choice! %s it is! I've updated your trip. " +
		"You're ready to move on to planning accommodations and activities!"
)

// DefaultCommitmentPhrases are matched case-insensitively as substrings.
var DefaultCommitmentPhrases = []string{
	"let's do",
	"let's go with",
	"i want to plan",
	"book",
	"perfect",
	"that's the one",
	"yes to",
	"definitely",
	"i choose",
	"i pick",
	"i'll take",
	"sounds perfect",
}

type Commitment struct {
	Result CommitmentResult
	// Choice is set only when Result is CommitmentConfirmed.
	Choice *models.Location
	Reply  string
}

type CommitmentDetector struct {
	phrases []string
}

func NewCommitmentDetector(phrases []string) *CommitmentDetector {
	var normalized []string
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			normalized = append(normalized, p)
		}
	}
	if len(normalized) == 0 {
		normalized = append(normalized, DefaultCommitmentPhrases...)
	}
	return &CommitmentDetector{phrases: normalized}
}

// DetectCommitment uses DefaultCommitmentPhrases.
func DetectCommitment(message string, candidates []models.Location) Commitment {
	return NewCommitmentDetector(nil).Detect(message, candidates)
}

// Detect looks for a commitment phrase in message and then for the candidate
// it names. Candidate names are tried before countries so that a named city
// wins over a country shared by two options.
func (d *CommitmentDetector) Detect(message string, candidates []models.Location) Commitment {
	msg := strings.ReplaceAll(strings.ToLower(message), "’", "'")
	c := d.detect(msg, candidates)
	metrics.Commitments.WithLabelValues(c.Result.String()).Inc()
	return c
}

func (d *CommitmentDetector) detect(msg string, candidates []models.Location) Commitment {
	if !d.hasPhrase(msg) {
		return Commitment{Result: CommitmentNone, Reply: tellMeMoreReply}
	}

	match := func(field func(models.Location) string) *models.Location {
		for i := range candidates {
			v := strings.ToLower(strings.TrimSpace(field(candidates[i])))
			if v != "" && strings.Contains(msg, v) {
				choice := candidates[i]
				return &choice
			}
		}
		return nil
	}

	choice := match(func(l models.Location) string { return l.Name })
	if choice == nil {
		choice = match(func(l models.Location) string { return l.Country })
	}
	if choice == nil {
		return Commitment{Result: CommitmentAmbiguous, Reply: whichOneReply}
	}
	return Commitment{
		Result: CommitmentConfirmed,
		Choice: choice,
		Reply:  fmt.Sprintf(confirmedReplyFormat, choice.Name),
	}
}

func (d *CommitmentDetector) hasPhrase(msg string) bool {
	for _, p := range d.phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
