package conversation

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"destination-discovery/internal/common/errors"
	"destination-discovery/internal/common/logger"
	"destination-discovery/internal/discovery"
	"destination-discovery/internal/models"
	"destination-discovery/internal/store"
)

const (
	questionsReply    = "1. What is your total budget?\n2. How many days can you travel?\n3. Do you prefer beaches or mountains?"
	passReview        = `{"grade": "pass", "improvement_notes": []}`
	destinationsReply = "1. Paris, France\nCity of lights, great food.\n2. Tokyo, Japan\nModern and historic.\n3. Lima, Peru\nAndean cuisine and coast."
)

// memoryStore keeps one trip and its conversation in memory.
type memoryStore struct {
	mu       sync.Mutex
	trip     *models.Trip
	conv     *models.Conversation
	state    *models.ConversationState
	messages []models.Message
	recs     []models.Recommendations
	turns    int
	saveErr  error
	resets   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{trip: &models.Trip{ID: 5, UserID: 2, Title: "Spring break", Status: models.TripStatusPlanning, OwnerEmail: "ana@example.com"}}
}

func copyState(st *models.ConversationState) *models.ConversationState {
	c := *st
	c.QuestionQueue = append([]string{}, st.QuestionQueue...)
	c.QAHistory = append([]models.QAPair{}, st.QAHistory...)
	return &c
}

func (m *memoryStore) LoadTrip(_ context.Context, tripID, userID int64) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trip == nil || m.trip.ID != tripID || m.trip.UserID != userID {
		return nil, store.ErrNotFound
	}
	t := *m.trip
	return &t, nil
}

func (m *memoryStore) LoadConversation(context.Context, int64) (*models.Conversation, *models.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conv == nil {
		return nil, nil, store.ErrNotFound
	}
	c := *m.conv
	return &c, copyState(m.state), nil
}

func (m *memoryStore) SaveTurn(_ context.Context, turn *models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.turns++
	if turn.NewConversation {
		c := *turn.Conversation
		m.conv = &c
	}
	m.state = copyState(turn.State)
	m.messages = append(m.messages, turn.Messages...)
	if turn.Recommendations != nil {
		m.recs = append(m.recs, *turn.Recommendations)
	}
	if turn.Trip != nil {
		if turn.Trip.Status != nil {
			m.trip.Status = *turn.Trip.Status
		}
		if turn.Trip.Destination != nil {
			m.trip.Destination = *turn.Trip.Destination
		}
	}
	return nil
}

func (m *memoryStore) ListMessages(context.Context, string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Message{}, m.messages...), nil
}

func (m *memoryStore) ListRecommendations(_ context.Context, _ string, limit int) ([]models.Recommendations, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Recommendations{}
	for i := len(m.recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.recs[i])
	}
	return out, nil
}

func (m *memoryStore) LatestRecommendations(ctx context.Context, convID string) (*models.Recommendations, error) {
	recs, _ := m.ListRecommendations(ctx, convID, 1)
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return &recs[0], nil
}

func (m *memoryStore) ResetConversation(context.Context, int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.conv, m.state, m.messages, m.recs = nil, nil, nil, nil
	m.trip.Status = models.TripStatusPlanning
	m.trip.Destination = ""
	return nil
}

type fakeLock struct{ released *int }

func (l fakeLock) Release(context.Context) error {
	*l.released++
	return nil
}

type fakeLocker struct {
	err      error
	acquired int
	released int
}

func (f *fakeLocker) Acquire(context.Context, int64) (Lock, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return fakeLock{released: &f.released}, nil
}

type fakeIndexer struct {
	indexed []models.Recommendations
	history []models.Recommendations
	err     error
	deleted []int64
}

func (f *fakeIndexer) Index(_ context.Context, rec *models.Recommendations) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, *rec)
	return nil
}

func (f *fakeIndexer) History(context.Context, int64, int) ([]models.Recommendations, error) {
	return f.history, f.err
}

func (f *fakeIndexer) DeleteTrip(_ context.Context, tripID int64) error {
	f.deleted = append(f.deleted, tripID)
	return f.err
}

type fakeNotifier struct {
	events []models.CommitmentEvent
}

func (f *fakeNotifier) Notify(_ context.Context, event models.CommitmentEvent) ([]models.Notification, error) {
	f.events = append(f.events, event)
	return []models.Notification{{Channel: "sns", Status: "sent", MessageID: "m-1"}}, nil
}

// replies hands out canned model output in order.
type replies struct {
	mu    sync.Mutex
	queue []string
	err   error
	calls int
}

func (r *replies) gateway() discovery.Gateway {
	return discovery.GatewayFunc(func(context.Context, string, string) (string, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls++
		if r.err != nil {
			return "", r.err
		}
		if len(r.queue) == 0 {
			return "", stderrors.New("unexpected gateway call")
		}
		out := r.queue[0]
		r.queue = r.queue[1:]
		return out, nil
	})
}

type fixture struct {
	svc      *Service
	store    *memoryStore
	locker   *fakeLocker
	indexer  *fakeIndexer
	notifier *fakeNotifier
	model    *replies
}

func newFixture(t *testing.T, modelReplies ...string) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemoryStore(),
		locker:   &fakeLocker{},
		indexer:  &fakeIndexer{},
		notifier: &fakeNotifier{},
		model:    &replies{queue: modelReplies},
	}
	log := logger.NewTestLogger(t)
	manager := discovery.NewManager(f.model.gateway(), log)
	f.svc = NewService(f.store, f.locker, manager, log, WithIndexer(f.indexer), WithNotifier(f.notifier))

	var n int
	f.svc.newID = func() string {
		n++
		return "id-" + string(rune('a'+n-1))
	}
	f.svc.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) send(t *testing.T, msg string) *MessageResult {
	t.Helper()
	res, err := f.svc.HandleMessage(context.Background(), MessageRequest{TripID: 5, UserID: 2, Message: msg})
	require.NoError(t, err)
	return res
}

func TestHandleMessage_FullConversation(t *testing.T) {
	f := newFixture(t, questionsReply, passReview, destinationsReply, passReview)

	res := f.send(t, "  I love food and museums  ")
	assert.Equal(t, models.StageAskingClarifications, res.Stage)
	assert.Equal(t, "What is your total budget?", res.AIMessage.Content)
	assert.Equal(t, "I love food and museums", res.UserMessage.Content)
	assert.Equal(t, 1, res.QuestionNumber)
	assert.Equal(t, 3, res.TotalQuestions)
	assert.Equal(t, 33, res.Progress)
	assert.Equal(t, models.TripStatusAIChatActive, f.store.trip.Status)

	res = f.send(t, "About 2000 euros")
	assert.Equal(t, "How many days can you travel?", res.AIMessage.Content)
	assert.Equal(t, 66, res.Progress)

	res = f.send(t, "Ten days")
	assert.Equal(t, "Do you prefer beaches or mountains?", res.AIMessage.Content)
	assert.Equal(t, 100, res.Progress)

	res = f.send(t, "Cities, honestly")
	assert.Equal(t, models.StageDestinationsComplete, res.Stage)
	assert.Equal(t, 100, res.Progress)
	assert.Equal(t, destinationsReply, res.AIMessage.Content)
	require.Len(t, res.Destinations, 3)
	assert.Equal(t, models.Location{Name: "Tokyo", Country: "Japan", Description: "Modern and historic."}, res.Destinations[1])
	assert.Equal(t, discovery.GradePass, res.Grade)
	assert.Zero(t, res.QuestionNumber)
	require.Len(t, f.indexer.indexed, 1)
	assert.Equal(t, int64(5), f.indexer.indexed[0].TripID)
	assert.Contains(t, f.store.state.UserInfo, "Q: Do you prefer beaches or mountains?\nA: Cities, honestly")

	res = f.send(t, "Let's go with Tokyo!")
	assert.Equal(t, models.StageCommitmentDetected, res.Stage)
	assert.Contains(t, res.AIMessage.Content, "Tokyo it is!")
	assert.Equal(t, models.TripStatusDestinationsSelected, f.store.trip.Status)
	assert.Equal(t, "Tokyo, Japan", f.store.trip.Destination)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "Tokyo", f.notifier.events[0].Destination.Name)
	assert.Equal(t, "ana@example.com", f.notifier.events[0].OwnerEmail)
	assert.Len(t, res.Notifications, 1)

	res = f.send(t, "Actually, what about Lima?")
	assert.Equal(t, models.StageCommitmentDetected, res.Stage)
	assert.Equal(t, lockedInReply, res.AIMessage.Content)
	assert.Equal(t, "Tokyo, Japan", f.store.trip.Destination)

	assert.Equal(t, 4, f.model.calls)
	assert.Equal(t, 6, f.store.turns)
	assert.Len(t, f.store.messages, 12)
	assert.Equal(t, f.locker.acquired, f.locker.released)
}

func TestHandleMessage_NoQuestionsDefersDestinations(t *testing.T) {
	f := newFixture(t, "I have no questions.", "Still nothing to ask.", destinationsReply, passReview)

	res := f.send(t, "Surprise me")
	assert.Equal(t, models.StageGeneratingDestinations, res.Stage)
	assert.Equal(t, preparingDestinationsReply, res.AIMessage.Content)
	assert.Empty(t, res.Destinations)
	assert.Equal(t, 0, f.store.state.TotalQuestions)
	assert.Empty(t, f.store.recs)
	assert.Equal(t, 2, f.model.calls)

	res = f.send(t, "Go")
	assert.Equal(t, models.StageDestinationsComplete, res.Stage)
	assert.Len(t, res.Destinations, 3)
	assert.Len(t, f.store.recs, 1)
	assert.Equal(t, 4, f.model.calls)
}

func TestHandleMessage_OneCyclePerMessage(t *testing.T) {
	failReview := `{"grade": "fail", "improvement_notes": ["Add more variety."]}`
	f := newFixture(t,
		"Nothing to ask.", "Still nothing.",
		destinationsReply, failReview,
		destinationsReply, failReview,
		destinationsReply, failReview,
	)

	f.send(t, "Surprise me")
	assert.Equal(t, 2, f.model.calls)

	res := f.send(t, "Go")
	assert.Equal(t, models.StageDestinationsComplete, res.Stage)
	assert.Equal(t, 8, f.model.calls)
	require.Len(t, f.store.recs, 1)
	assert.Equal(t, discovery.GradeFail, f.store.recs[0].Grade)
}

func TestHandleMessage_UnknownStage(t *testing.T) {
	f := newFixture(t)
	f.store.conv = &models.Conversation{ID: "c-1", TripID: 5}
	f.store.state = models.NewConversationState("c-1")
	f.store.state.Stage = models.Stage("done")

	_, err := f.svc.HandleMessage(context.Background(), MessageRequest{TripID: 5, UserID: 2, Message: "hi"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInternal), "got %v", err)
	assert.Zero(t, f.store.turns)
	assert.Zero(t, f.model.calls)
	assert.Equal(t, f.locker.acquired, f.locker.released)
}

func TestHandleMessage_CommitmentNeedsDestinations(t *testing.T) {
	f := newFixture(t)
	f.store.conv = &models.Conversation{ID: "c-1", TripID: 5}
	f.store.state = models.NewConversationState("c-1")
	f.store.state.Stage = models.StageDestinationsComplete

	res := f.send(t, "Let's go with Paris")
	assert.Equal(t, noDestinationsReply, res.AIMessage.Content)
	assert.Equal(t, models.StageDestinationsComplete, res.Stage)
	assert.Empty(t, f.notifier.events)
}

func TestHandleMessage_AmbiguousCommitment(t *testing.T) {
	f := newFixture(t)
	f.store.conv = &models.Conversation{ID: "c-1", TripID: 5}
	f.store.state = models.NewConversationState("c-1")
	f.store.state.Stage = models.StageDestinationsComplete
	f.store.recs = []models.Recommendations{{ID: "r-1", Locations: discovery.Locations(discovery.ParseDestinations(destinationsReply)), Grade: "pass"}}

	res := f.send(t, "Sounds perfect!")
	assert.Equal(t, models.StageDestinationsComplete, res.Stage)
	assert.Contains(t, res.AIMessage.Content, "Which of the three destinations")
	assert.Len(t, res.Destinations, 3)
	assert.Equal(t, "pass", res.Grade)
	assert.Empty(t, f.notifier.events)
}

func TestHandleMessage_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		msg   string
		code  errors.ErrorCode
	}{
		{"empty message", nil, "   ", errors.ErrCodeInvalidMessage},
		{"message too long", nil, strings.Repeat("a", MaxMessageLength+1), errors.ErrCodeInvalidMessage},
		{"busy conversation", func(f *fixture) { f.locker.err = store.ErrLockHeld }, "hi", errors.ErrCodeConversationBusy},
		{"lock backend down", func(f *fixture) { f.locker.err = stderrors.New("dial tcp") }, "hi", errors.ErrCodeLockFailed},
		{"foreign trip", func(f *fixture) { f.store.trip.UserID = 99 }, "hi", errors.ErrCodeTripNotFound},
		{"model failure", func(f *fixture) {
			f.model.err = errors.NewLLMGatewayFailedError(stderrors.New("503"))
		}, "hi", errors.ErrCodeLLMGatewayFailed},
		{"save failure", func(f *fixture) {
			f.model.queue = []string{questionsReply, passReview}
			f.store.saveErr = stderrors.New("connection reset")
		}, "hi", errors.ErrCodeStateStoreFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.svc.HandleMessage(context.Background(), MessageRequest{TripID: 5, UserID: 2, Message: tt.msg})
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
			assert.Zero(t, f.store.turns)
			assert.Nil(t, f.store.conv)
			assert.Equal(t, f.locker.acquired, f.locker.released)
		})
	}
}

func TestHandleMessage_IndexFailureDoesNotFailTurn(t *testing.T) {
	f := newFixture(t, "No questions here.", "None again.", destinationsReply, passReview)
	f.indexer.err = stderrors.New("cluster red")

	f.send(t, "Anywhere warm")
	res := f.send(t, "Go")
	assert.Equal(t, models.StageDestinationsComplete, res.Stage)
	assert.Len(t, f.store.recs, 1)
}

func TestGetConversation(t *testing.T) {
	t.Run("missing conversation", func(t *testing.T) {
		f := newFixture(t)
		view, err := f.svc.GetConversation(context.Background(), 5, 2)
		require.NoError(t, err)
		assert.False(t, view.Found)
		assert.Equal(t, "No conversation started yet for this trip", view.Message)
		assert.Equal(t, "Spring break", view.TripTitle)
	})

	t.Run("missing trip", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.GetConversation(context.Background(), 6, 2)
		assert.True(t, errors.HasCode(err, errors.ErrCodeTripNotFound))
	})

	t.Run("transcript with history", func(t *testing.T) {
		f := newFixture(t, "No questions.", "None.", destinationsReply, passReview)
		f.send(t, "Food trip")
		f.send(t, "Go")
		f.indexer.history = f.indexer.indexed

		view, err := f.svc.GetConversation(context.Background(), 5, 2)
		require.NoError(t, err)
		assert.True(t, view.Found)
		assert.Len(t, view.Messages, 4)
		assert.Equal(t, models.StageDestinationsComplete, view.State.Stage)
		assert.Equal(t, "Paris", view.Destinations[0].Name)
		assert.Len(t, view.History, 1)
	})

	t.Run("stale index falls back to store", func(t *testing.T) {
		f := newFixture(t, "No questions.", "None.", destinationsReply, passReview)
		f.send(t, "Food trip")
		f.send(t, "Go")
		f.indexer.history = []models.Recommendations{{ID: "older"}}

		view, err := f.svc.GetConversation(context.Background(), 5, 2)
		require.NoError(t, err)
		require.Len(t, view.History, 1)
		assert.Equal(t, f.store.recs[0].ID, view.History[0].ID)
	})
}

func TestResetConversation(t *testing.T) {
	f := newFixture(t, questionsReply, passReview)
	f.send(t, "Beach holiday")

	msg, err := f.svc.ResetConversation(context.Background(), 5, 2)
	require.NoError(t, err)
	assert.Equal(t, "Conversation reset successfully", msg)
	assert.Equal(t, 1, f.store.resets)
	assert.Nil(t, f.store.conv)
	assert.Equal(t, models.TripStatusPlanning, f.store.trip.Status)
	assert.Equal(t, []int64{5}, f.indexer.deleted)

	_, err = f.svc.ResetConversation(context.Background(), 5, 3)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTripNotFound))
}

func TestValidateMessage(t *testing.T) {
	msg, err := ValidateMessage("\n hello \t")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg)

	_, err = ValidateMessage(strings.Repeat("é", MaxMessageLength))
	assert.NoError(t, err)
}
