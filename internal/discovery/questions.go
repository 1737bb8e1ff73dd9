package discovery

const (
	DefaultMaxQuestionIterations = 1
	questionRefinementTag        = "REFINEMENT_FOR_QUESTIONS"
)

func questionCycle(maxQuestions, maxIters int) cycleDef[[]string] {
	return cycleDef[[]string]{
		kind:     "questions",
		tag:      questionRefinementTag,
		maxIters: maxIters,
		prompt: func(info string) string {
			return questionPrompt(info, maxQuestions)
		},
		parse: func(raw string) []string {
			return ParseQuestions(raw, maxQuestions)
		},
		precheck: PrecheckQuestions,
		rubric: func(info, _ string, questions []string) string {
			return questionRubric(info, questions)
		},
	}
}
