package discovery

import (
	"context"
	"strings"

	"destination-discovery/internal/common/logger"
	"destination-discovery/internal/common/metrics"
	"destination-discovery/internal/models"
)

const pendingQuestionsMessage = "There are still clarifying questions to answer before destinations can be generated."

// Manager runs the question and destination cycles for a conversation. It
// holds no conversation state between calls.
type Manager struct {
	gateway      Gateway
	logger       logger.Logger
	maxQuestions int
	maxQIters    int
	maxDestIters int
	detector     *CommitmentDetector
}

type Option func(*Manager)

// WithMaxQuestions lowers the question cap. Values outside 1..6 are ignored.
func WithMaxQuestions(n int) Option {
	return func(m *Manager) {
		if n > 0 && n <= DefaultMaxQuestions {
			m.maxQuestions = n
		}
	}
}

func WithMaxQuestionIterations(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxQIters = n
		}
	}
}

func WithMaxDestinationIterations(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxDestIters = n
		}
	}
}

// WithCommitmentPhrases replaces the default commitment phrases. An empty
// list keeps the defaults.
func WithCommitmentPhrases(phrases []string) Option {
	return func(m *Manager) {
		m.detector = NewCommitmentDetector(phrases)
	}
}

func NewManager(gateway Gateway, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		gateway:      gateway,
		logger:       log,
		maxQuestions: DefaultMaxQuestions,
		maxQIters:    DefaultMaxQuestionIterations,
		maxDestIters: DefaultMaxDestinationIterations,
		detector:     NewCommitmentDetector(nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ProcessInitialMessage seeds a state from the traveller's first message and
// runs the question cycle once. Malformed model output yields an empty queue,
// only gateway failures are returned as errors.
func (m *Manager) ProcessInitialMessage(ctx context.Context, info string) (WorkflowState, error) {
	st := WorkflowState{
		Info:          info,
		QuestionQueue: []string{},
		History:       []models.QAPair{},
		Stage:         models.StageInitial,
	}

	cycle := questionCycle(m.maxQuestions, m.maxQIters)
	res, err := cycle.run(ctx, m.gateway, st.Info, 0)
	if err != nil {
		return st, err
	}

	st.Info = res.Info
	st.QuestionQueue = res.Items
	st.QuestionIteration = res.Iterations
	st.QuestionGrade = res.Grade
	st.QuestionNotes = res.Notes
	if len(st.QuestionQueue) > 0 {
		st.Stage = models.StageAskingClarifications
	} else {
		st.Stage = models.StageGeneratingDestinations
	}

	metrics.ObserveCycle(cycle.kind, res.Grade, res.Iterations)
	m.logger.Info("question cycle finished", map[string]interface{}{
		"grade":      res.Grade,
		"questions":  len(res.Items),
		"iterations": res.Iterations,
	})
	return st, nil
}

// GetNextQuestion returns the head of the queue.
func (m *Manager) GetNextQuestion(st WorkflowState) (string, bool) {
	if len(st.QuestionQueue) == 0 {
		return "", false
	}
	return st.QuestionQueue[0], true
}

// ProcessClarificationAnswer consumes the head question with answer and
// returns the new state. The input state is not modified. With an empty queue
// it returns an unchanged copy.
func (m *Manager) ProcessClarificationAnswer(st WorkflowState, answer string) WorkflowState {
	next := st.clone()
	if len(next.QuestionQueue) == 0 {
		return next
	}

	question := next.QuestionQueue[0]
	next.QuestionQueue = next.QuestionQueue[1:]
	answer = strings.TrimSpace(answer)

	next.Info += "\nQ: " + question + "\nA: " + answer
	next.History = append(next.History, models.QAPair{Question: question, Answer: answer})
	if len(next.QuestionQueue) == 0 {
		next.Stage = models.StageGeneratingDestinations
	}
	return next
}

// FinalizeResult is either a generated destination set or, when questions are
// still pending, an Error naming the NextQuestion.
type FinalizeResult struct {
	Grade        string        `json:"grade,omitempty"`
	Destinations []Destination `json:"destinations,omitempty"`
	Notes        []string      `json:"notes,omitempty"`
	Raw          string        `json:"raw,omitempty"`
	Iterations   int           `json:"iterations"`
	Error        string        `json:"error,omitempty"`
	NextQuestion string        `json:"next_question,omitempty"`

	// State is the conversation after finalizing. On a refused call it is the
	// input state.
	State WorkflowState `json:"-"`
}

func (r *FinalizeResult) OK() bool {
	return r.Error == ""
}

// FinalizeRecommendations runs the destination cycle. It refuses without any
// gateway call while questions are pending. A successful result always holds
// three destinations; a short generation is padded and graded fail.
func (m *Manager) FinalizeRecommendations(ctx context.Context, st WorkflowState) (*FinalizeResult, error) {
	if q, ok := m.GetNextQuestion(st); ok {
		return &FinalizeResult{
			Error:        pendingQuestionsMessage,
			NextQuestion: q,
			State:        st.clone(),
		}, nil
	}

	cycle := destinationCycle(m.maxDestIters)
	res, err := cycle.run(ctx, m.gateway, st.Info, st.DestIteration)
	if err != nil {
		return nil, err
	}

	grade, notes := res.Grade, res.Notes
	dests, padded := padDestinations(res.Items)
	if padded {
		grade = GradeFail
		notes = append(append([]string(nil), notes...), "Fewer than 3 destinations were generated; placeholder options were added.")
	}

	next := st.clone()
	next.Info = res.Info
	next.DestinationsText = res.Raw
	next.Destinations = dests
	next.DestIteration = res.Iterations
	next.DestGrade = grade
	next.DestNotes = notes
	next.Stage = models.StageDestinationsComplete

	metrics.ObserveCycle(cycle.kind, grade, res.Iterations)
	m.logger.Info("destination cycle finished", map[string]interface{}{
		"grade":      grade,
		"parsed":     len(res.Items),
		"iterations": res.Iterations,
	})

	return &FinalizeResult{
		Grade:        grade,
		Destinations: dests,
		Notes:        notes,
		Raw:          res.Raw,
		Iterations:   res.Iterations,
		State:        next,
	}, nil
}

// DetectCommitment matches a reply against candidates with the manager's
// configured phrases.
func (m *Manager) DetectCommitment(message string, candidates []models.Location) Commitment {
	return m.detector.Detect(message, candidates)
}
