package conversation

import (
	"context"
	stderrors "errors"

	"go.opentelemetry.io/otel/attribute"

	"destination-discovery/internal/common/errors"
	"destination-discovery/internal/common/observability"
	"destination-discovery/internal/models"
	"destination-discovery/internal/store"
)

type ConversationView struct {
	Found          bool
	Message        string
	ConversationID string
	TripID         int64
	TripTitle      string
	Messages       []models.Message
	State          *models.ConversationState
	Destinations   []models.Location
	// History lists every generation of recommendations, newest first.
	History []models.Recommendations
}

// GetConversation returns the trip's transcript, state and recommendations.
// A trip without a conversation is reported with Found set to false.
func (s *Service) GetConversation(ctx context.Context, tripID, userID int64) (*ConversationView, error) {
	ctx, span := observability.StartSpan(ctx, "conversation.GetConversation", attribute.Int64("trip.id", tripID))
	defer span.End()

	trip, err := s.loadTrip(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}

	view := &ConversationView{TripID: trip.ID, TripTitle: trip.Title}

	conv, rec, err := s.store.LoadConversation(ctx, tripID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			view.Message = noConversationMessage
			return view, nil
		}
		return nil, errors.NewStateStoreFailedError("load conversation", err)
	}

	messages, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, errors.NewStateStoreFailedError("list messages", err)
	}

	view.Found = true
	view.ConversationID = conv.ID
	view.Messages = messages
	view.State = rec

	history, err := s.history(ctx, tripID, conv.ID)
	if err != nil {
		return nil, err
	}
	view.History = history
	if len(history) > 0 {
		view.Destinations = history[0].Locations
	}
	return view, nil
}

// history reads the indexed generations and falls back to the store when the
// index is unavailable or has not caught up with the latest turn.
func (s *Service) history(ctx context.Context, tripID int64, conversationID string) ([]models.Recommendations, error) {
	stored, err := s.store.ListRecommendations(ctx, conversationID, s.historySize)
	if err != nil {
		return nil, errors.NewStateStoreFailedError("list recommendations", err)
	}
	if s.indexer == nil || len(stored) == 0 {
		return stored, nil
	}

	indexed, err := s.indexer.History(ctx, tripID, s.historySize)
	if err != nil {
		s.logger.Warn("recommendation history unavailable, using store", map[string]interface{}{
			"tripId": tripID,
			"error":  err.Error(),
		})
		return stored, nil
	}
	if len(indexed) == 0 || indexed[0].ID != stored[0].ID {
		return stored, nil
	}
	return indexed, nil
}

// ResetConversation deletes the trip's conversation and puts the trip back
// into planning. The indexed history is removed best effort afterwards.
func (s *Service) ResetConversation(ctx context.Context, tripID, userID int64) (string, error) {
	ctx, span := observability.StartSpan(ctx, "conversation.ResetConversation", attribute.Int64("trip.id", tripID))
	defer span.End()

	lock, err := s.acquire(ctx, tripID)
	if err != nil {
		return "", err
	}
	defer s.release(lock, tripID)

	if _, err := s.loadTrip(ctx, tripID, userID); err != nil {
		return "", err
	}
	if err := s.store.ResetConversation(ctx, tripID); err != nil {
		return "", errors.NewStateStoreFailedError("reset conversation", err)
	}

	if s.indexer != nil {
		if err := s.indexer.DeleteTrip(ctx, tripID); err != nil {
			s.logger.Warn("failed to delete indexed recommendations", map[string]interface{}{
				"tripId": tripID,
				"error":  err.Error(),
			})
		}
	}

	s.logger.Info("conversation reset", map[string]interface{}{"tripId": tripID})
	return resetMessage, nil
}
