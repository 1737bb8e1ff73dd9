package discovery

import (
	"encoding/json"
	"strings"

	"destination-discovery/internal/common/validation"
)

const (
	GradePass = "pass"
	GradeFail = "fail"

	unreadableReviewNote = "The review could not be read as JSON; regenerate strictly in the requested format."
	emptyReviewNote      = "The review failed the output without notes; regenerate strictly in the requested format."
)

var reviewSchema = validation.MustCompile(`{
  "type": "object",
  "required": ["grade"],
  "properties": {
    "grade": {"type": "string"},
    "improvement_notes": {"type": "array", "items": {"type": "string"}}
  }
}`)

type Evaluation struct {
	Grade string
	Notes []string
}

func (e Evaluation) Passed() bool {
	return e.Grade == GradePass
}

func failed(notes ...string) Evaluation {
	return Evaluation{Grade: GradeFail, Notes: notes}
}

// ParseEvaluation reads a reviewer reply. The JSON object is taken from the
// first '{' to the last '}' so surrounding prose or code fences are ignored.
// Anything unreadable grades as fail with a generic note, and only the exact
// grade "pass" passes.
func ParseEvaluation(reply string) Evaluation {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return failed(unreadableReviewNote)
	}
	doc := []byte(reply[start : end+1])

	if res := reviewSchema.ValidateJSON(doc); !res.Valid {
		return failed(unreadableReviewNote)
	}

	var review struct {
		Grade string   `json:"grade"`
		Notes []string `json:"improvement_notes"`
	}
	if err := json.Unmarshal(doc, &review); err != nil {
		return failed(unreadableReviewNote)
	}

	var notes []string
	for _, n := range review.Notes {
		if n = strings.TrimSpace(n); n != "" {
			notes = append(notes, n)
		}
	}

	if review.Grade == GradePass {
		return Evaluation{Grade: GradePass, Notes: notes}
	}
	if len(notes) == 0 {
		return failed(emptyReviewNote)
	}
	return failed(notes...)
}
