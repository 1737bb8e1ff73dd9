package models

import "time"

// Stage is the position of a trip conversation in the discovery flow.
type Stage string

const (
	StageInitial                Stage = "initial"
	StageGeneratingQuestions    Stage = "generating_questions"
	StageAskingClarifications   Stage = "asking_clarifications"
	StageGeneratingDestinations Stage = "generating_destinations"
	StageDestinationsComplete   Stage = "destinations_complete"
	StageCommitmentDetected     Stage = "commitment_detected"
)

var stageOrder = map[Stage]int{
	StageInitial:                0,
	StageGeneratingQuestions:    1,
	StageAskingClarifications:   2,
	StageGeneratingDestinations: 3,
	StageDestinationsComplete:   4,
	StageCommitmentDetected:     5,
}

func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Before reports whether s comes strictly earlier in the flow than other.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// Trip statuses written by the discovery flow. The full set is owned by the
// trip service.
const (
	TripStatusPlanning             = "planning"
	TripStatusAIChatActive         = "ai_chat_active"
	TripStatusDestinationsSelected = "destinations_selected"
)

type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ConversationState is the persisted workflow record, one per conversation.
type ConversationState struct {
	ConversationID   string    `json:"conversationId" db:"conversation_id"`
	Stage            Stage     `json:"currentStage" db:"current_stage"`
	UserInfo         string    `json:"userInfo" db:"user_info"`
	QuestionQueue    []string  `json:"questionQueue" db:"question_queue"`
	QAHistory        []QAPair  `json:"qaHistory" db:"qa_history"`
	QuestionsAsked   int       `json:"questionsAsked" db:"questions_asked"`
	TotalQuestions   int       `json:"totalQuestions" db:"total_questions"`
	DestinationsText string    `json:"destinationsText" db:"destinations_text"`
	QuestionGrade    string    `json:"questionGrade,omitempty" db:"question_grade"`
	QuestionNotes    []string  `json:"questionNotes,omitempty" db:"question_notes"`
	DestGrade        string    `json:"destGrade,omitempty" db:"dest_grade"`
	DestNotes        []string  `json:"destNotes,omitempty" db:"dest_notes"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
}

// NewConversationState returns the record for a conversation that has not
// received any message yet.
func NewConversationState(conversationID string) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		Stage:          StageInitial,
		QuestionQueue:  []string{},
		QAHistory:      []QAPair{},
	}
}

func (s *ConversationState) IsComplete() bool {
	return s.Stage == StageDestinationsComplete || s.Stage == StageCommitmentDetected
}

// Progress is the share of clarifying questions asked, as a whole percentage.
func (s *ConversationState) Progress() int {
	if s.TotalQuestions > 0 {
		return s.QuestionsAsked * 100 / s.TotalQuestions
	}
	return 0
}

type Conversation struct {
	ID        string    `json:"id" db:"id"`
	TripID    int64     `json:"tripId" db:"trip_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"-" db:"conversation_id"`
	IsUser         bool      `json:"isUser" db:"is_user"`
	Content        string    `json:"content" db:"content"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
}

// Location is one recommended destination.
type Location struct {
	Name        string `json:"name"`
	Country     string `json:"country"`
	Description string `json:"description"`
}

// Recommendations is one generation of three destinations.
type Recommendations struct {
	ID             string     `json:"id" db:"id"`
	ConversationID string     `json:"conversationId" db:"conversation_id"`
	TripID         int64      `json:"tripId" db:"-"`
	Locations      []Location `json:"locations" db:"locations"`
	Grade          string     `json:"grade" db:"grade"`
	Notes          []string   `json:"notes" db:"notes"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
}

type Trip struct {
	ID          int64  `json:"id" db:"id"`
	UserID      int64  `json:"userId" db:"user_id"`
	Title       string `json:"title" db:"title"`
	Status      string `json:"status" db:"status"`
	Destination string `json:"destination,omitempty" db:"destination"`
	OwnerEmail  string `json:"ownerEmail,omitempty" db:"email"`
}

// TripUpdate carries the trip columns changed by a turn. Nil fields are left
// as they are.
type TripUpdate struct {
	Status      *string
	Destination *string
}

// Turn is everything one processed message writes. The store applies it in a
// single transaction.
type Turn struct {
	TripID          int64
	Conversation    *Conversation
	NewConversation bool
	State           *ConversationState
	Messages        []Message
	Recommendations *Recommendations
	Trip            *TripUpdate
}
