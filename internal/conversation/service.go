// Package conversation runs one chat turn of a trip's destination discovery:
// it serialises writers per trip, drives the discovery manager through the
// conversation stages and persists the turn.
package conversation

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"destination-discovery/internal/common/errors"
	"destination-discovery/internal/common/logger"
	"destination-discovery/internal/common/observability"
	"destination-discovery/internal/discovery"
	"destination-discovery/internal/models"
	"destination-discovery/internal/store"
)

const (
	MaxMessageLength   = 4000
	DefaultHistorySize = 20

	noDestinationsReply        = "I don't see any destinations yet. Let me help you find some!"
	preparingDestinationsReply = "Let me think about some destinations for you..."
	lockedInReply              = "Your destination is already locked in for this trip. " +
		"If you'd like to explore other places, reset the conversation and we'll start over."
	noConversationMessage = "No conversation started yet for this trip"
	resetMessage          = "Conversation reset successfully"
)

type Store interface {
	LoadTrip(ctx context.Context, tripID, userID int64) (*models.Trip, error)
	LoadConversation(ctx context.Context, tripID int64) (*models.Conversation, *models.ConversationState, error)
	SaveTurn(ctx context.Context, turn *models.Turn) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	ListRecommendations(ctx context.Context, conversationID string, limit int) ([]models.Recommendations, error)
	LatestRecommendations(ctx context.Context, conversationID string) (*models.Recommendations, error)
	ResetConversation(ctx context.Context, tripID int64) error
}

type Lock interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Acquire(ctx context.Context, tripID int64) (Lock, error)
}

type Indexer interface {
	Index(ctx context.Context, rec *models.Recommendations) error
	History(ctx context.Context, tripID int64, size int) ([]models.Recommendations, error)
	DeleteTrip(ctx context.Context, tripID int64) error
}

type Notifier interface {
	Notify(ctx context.Context, event models.CommitmentEvent) ([]models.Notification, error)
}

// RedisLocker adapts a store.RedisLocker to Locker.
func RedisLocker(l *store.RedisLocker) Locker {
	return redisLocker{l}
}

type redisLocker struct {
	locker *store.RedisLocker
}

func (r redisLocker) Acquire(ctx context.Context, tripID int64) (Lock, error) {
	lock, err := r.locker.Acquire(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

type Service struct {
	store       Store
	locker      Locker
	manager     *discovery.Manager
	indexer     Indexer
	notifier    Notifier
	logger      logger.Logger
	historySize int

	now   func() time.Time
	newID func() string
}

type Option func(*Service)

// WithIndexer enables the recommendation history in Elasticsearch.
func WithIndexer(idx Indexer) Option {
	return func(s *Service) { s.indexer = idx }
}

// WithNotifier enables commitment notifications.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithHistorySize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historySize = n
		}
	}
}

func NewService(st Store, locker Locker, manager *discovery.Manager, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:       st,
		locker:      locker,
		manager:     manager,
		logger:      log.WithFields(map[string]interface{}{"component": "conversation"}),
		historySize: DefaultHistorySize,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type MessageRequest struct {
	TripID  int64
	UserID  int64
	Message string
}

type MessageResult struct {
	UserMessage    models.Message
	AIMessage      models.Message
	ConversationID string
	Stage          models.Stage
	Progress       int
	// QuestionNumber and TotalQuestions are set while clarifying questions are asked.
	QuestionNumber int
	TotalQuestions int
	Destinations   []models.Location
	Grade          string
	Notes          []string
	Notifications  []models.Notification
}

// turn collects what a message changes before it is written.
type turn struct {
	trip   *models.Trip
	conv   *models.Conversation
	rec    *models.ConversationState
	isNew  bool
	reply  string
	recs   *models.Recommendations
	latest *models.Recommendations
	update models.TripUpdate
	commit *models.Location
}

// ValidateMessage trims message and checks it is non-empty and short enough.
func ValidateMessage(message string) (string, error) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return "", errors.NewInvalidMessageError("message must not be empty")
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return "", errors.NewInvalidMessageError("message exceeds 4000 characters")
	}
	return msg, nil
}

// HandleMessage processes one user message under the trip lock. Nothing is
// persisted when the turn fails; a retried job sees the same state again.
func (s *Service) HandleMessage(ctx context.Context, req MessageRequest) (*MessageResult, error) {
	msg, err := ValidateMessage(req.Message)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "conversation.HandleMessage",
		attribute.Int64("trip.id", req.TripID),
		attribute.Int64("user.id", req.UserID),
	)
	defer span.End()

	res, err := s.handleMessage(ctx, req, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("conversation.stage", string(res.Stage)))
	return res, nil
}

func (s *Service) handleMessage(ctx context.Context, req MessageRequest, msg string) (*MessageResult, error) {
	lock, err := s.acquire(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	defer s.release(lock, req.TripID)

	t, err := s.load(ctx, req.TripID, req.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	userMsg := models.Message{ID: s.newID(), ConversationID: t.conv.ID, IsUser: true, Content: msg, Timestamp: now}

	prev := t.rec.Stage
	if err := s.advance(ctx, t, msg); err != nil {
		return nil, err
	}
	if t.rec.Stage.Before(prev) {
		return nil, errors.NewInternalError(fmt.Errorf("conversation stage moved back from %s to %s", prev, t.rec.Stage))
	}

	if t.update.Status == nil && t.trip.Status == models.TripStatusPlanning {
		status := models.TripStatusAIChatActive
		t.update.Status = &status
	}

	aiMsg := models.Message{ID: s.newID(), ConversationID: t.conv.ID, IsUser: false, Content: t.reply, Timestamp: now.Add(time.Millisecond)}
	t.rec.UpdatedAt = now

	saved := &models.Turn{
		TripID:          req.TripID,
		Conversation:    t.conv,
		NewConversation: t.isNew,
		State:           t.rec,
		Messages:        []models.Message{userMsg, aiMsg},
		Recommendations: t.recs,
	}
	if t.update.Status != nil || t.update.Destination != nil {
		saved.Trip = &t.update
	}
	if err := s.store.SaveTurn(ctx, saved); err != nil {
		return nil, errors.NewStateStoreFailedError("save turn", err)
	}

	s.logger.Info("turn saved", map[string]interface{}{
		"tripId":         req.TripID,
		"conversationId": t.conv.ID,
		"stage":          string(t.rec.Stage),
	})

	result := &MessageResult{
		UserMessage:    userMsg,
		AIMessage:      aiMsg,
		ConversationID: t.conv.ID,
		Stage:          t.rec.Stage,
		Progress:       100,
	}
	if t.rec.Stage == models.StageAskingClarifications {
		result.Progress = t.rec.Progress()
		result.QuestionNumber = t.rec.QuestionsAsked
		result.TotalQuestions = t.rec.TotalQuestions
	}

	latest := t.recs
	if latest == nil {
		latest = t.latest
	}
	if latest != nil {
		if t.rec.Stage == models.StageDestinationsComplete {
			result.Destinations = latest.Locations
		}
		result.Grade = latest.Grade
		result.Notes = latest.Notes
	}

	if t.recs != nil {
		s.index(ctx, t.recs)
	}
	if t.commit != nil {
		result.Notifications = s.notify(ctx, req, t)
	}
	return result, nil
}

func (s *Service) acquire(ctx context.Context, tripID int64) (Lock, error) {
	lock, err := s.locker.Acquire(ctx, tripID)
	if err != nil {
		if stderrors.Is(err, store.ErrLockHeld) {
			return nil, errors.NewConversationBusyError(tripID)
		}
		return nil, errors.NewLockFailedError(err)
	}
	return lock, nil
}

func (s *Service) release(lock Lock, tripID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		s.logger.Warn("failed to release conversation lock", map[string]interface{}{
			"tripId": tripID,
			"error":  err.Error(),
		})
	}
}

func (s *Service) loadTrip(ctx context.Context, tripID, userID int64) (*models.Trip, error) {
	trip, err := s.store.LoadTrip(ctx, tripID, userID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NewTripNotFoundError(tripID)
		}
		return nil, errors.NewStateStoreFailedError("load trip", err)
	}
	return trip, nil
}

func (s *Service) load(ctx context.Context, tripID, userID int64) (*turn, error) {
	trip, err := s.loadTrip(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}

	conv, rec, err := s.store.LoadConversation(ctx, tripID)
	switch {
	case err == nil:
		return &turn{trip: trip, conv: conv, rec: rec}, nil
	case stderrors.Is(err, store.ErrNotFound):
		now := s.now()
		conv = &models.Conversation{ID: s.newID(), TripID: tripID, CreatedAt: now}
		rec = models.NewConversationState(conv.ID)
		rec.CreatedAt = now
		return &turn{trip: trip, conv: conv, rec: rec, isNew: true}, nil
	default:
		return nil, errors.NewStateStoreFailedError("load conversation", err)
	}
}

// advance moves the conversation one step forward and sets the reply. A turn
// runs at most one cycle: when the question cycle yields nothing to ask, the
// destinations are generated on the next message.
func (s *Service) advance(ctx context.Context, t *turn, msg string) error {
	if t.rec.Stage == "" {
		t.rec.Stage = models.StageInitial
	}
	if !t.rec.Stage.Valid() {
		return errors.NewInternalError(fmt.Errorf("unknown conversation stage %q", t.rec.Stage))
	}

	switch t.rec.Stage {
	case models.StageInitial, models.StageGeneratingQuestions:
		ws, err := s.manager.ProcessInitialMessage(ctx, msg)
		if err != nil {
			return err
		}
		t.rec.TotalQuestions = len(ws.QuestionQueue)
		t.rec.QuestionsAsked = 0
		if q, ok := s.manager.GetNextQuestion(ws); ok {
			discovery.ToRecord(ws, t.rec)
			t.rec.QuestionsAsked = 1
			t.reply = q
			return nil
		}
		discovery.ToRecord(ws, t.rec)
		t.reply = preparingDestinationsReply
		return nil

	case models.StageAskingClarifications:
		ws := s.manager.ProcessClarificationAnswer(discovery.FromRecord(t.rec), msg)
		if q, ok := s.manager.GetNextQuestion(ws); ok {
			discovery.ToRecord(ws, t.rec)
			t.rec.QuestionsAsked++
			t.reply = q
			return nil
		}
		return s.finalize(ctx, t, ws)

	case models.StageGeneratingDestinations:
		return s.finalize(ctx, t, discovery.FromRecord(t.rec))

	case models.StageDestinationsComplete:
		return s.detectCommitment(ctx, t, msg)

	case models.StageCommitmentDetected:
		t.reply = lockedInReply
		return s.loadLatest(ctx, t)
	}
	return nil
}

func (s *Service) finalize(ctx context.Context, t *turn, ws discovery.WorkflowState) error {
	res, err := s.manager.FinalizeRecommendations(ctx, ws)
	if err != nil {
		return err
	}
	if !res.OK() {
		discovery.ToRecord(res.State, t.rec)
		t.reply = res.NextQuestion
		return nil
	}

	discovery.ToRecord(res.State, t.rec)
	t.reply = res.Raw
	t.recs = &models.Recommendations{
		ID:             s.newID(),
		ConversationID: t.conv.ID,
		TripID:         t.trip.ID,
		Locations:      discovery.Locations(res.Destinations),
		Grade:          res.Grade,
		Notes:          res.Notes,
		CreatedAt:      s.now(),
	}
	return nil
}

func (s *Service) loadLatest(ctx context.Context, t *turn) error {
	latest, err := s.store.LatestRecommendations(ctx, t.conv.ID)
	if err != nil && !stderrors.Is(err, store.ErrNotFound) {
		return errors.NewStateStoreFailedError("load recommendations", err)
	}
	t.latest = latest
	return nil
}

func (s *Service) detectCommitment(ctx context.Context, t *turn, msg string) error {
	if err := s.loadLatest(ctx, t); err != nil {
		return err
	}
	if t.latest == nil {
		t.reply = noDestinationsReply
		return nil
	}

	c := s.manager.DetectCommitment(msg, t.latest.Locations)
	t.reply = c.Reply
	if c.Result != discovery.CommitmentConfirmed {
		return nil
	}

	status := models.TripStatusDestinationsSelected
	destination := c.Choice.Name
	if c.Choice.Country != "" {
		destination += ", " + c.Choice.Country
	}
	t.update = models.TripUpdate{Status: &status, Destination: &destination}
	t.rec.Stage = models.StageCommitmentDetected
	t.commit = c.Choice
	return nil
}

// index and notify run after the turn is committed. Their failures are logged
// and do not fail the turn.
func (s *Service) index(ctx context.Context, rec *models.Recommendations) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Index(ctx, rec); err != nil {
		s.logger.Warn("failed to index recommendations", map[string]interface{}{
			"recommendationsId": rec.ID,
			"error":             errors.NewRecommendationIndexFailedError(err).Error(),
		})
	}
}

func (s *Service) notify(ctx context.Context, req MessageRequest, t *turn) []models.Notification {
	if s.notifier == nil {
		return nil
	}
	results, err := s.notifier.Notify(ctx, models.CommitmentEvent{
		EventType:      models.EventDestinationCommitted,
		TripID:         req.TripID,
		TripTitle:      t.trip.Title,
		UserID:         req.UserID,
		ConversationID: t.conv.ID,
		Destination:    *t.commit,
		OwnerEmail:     t.trip.OwnerEmail,
		OccurredAt:     s.now(),
	})
	if err != nil {
		s.logger.Warn("commitment notification incomplete", map[string]interface{}{
			"tripId": req.TripID,
			"error":  err.Error(),
		})
	}
	return results
}
