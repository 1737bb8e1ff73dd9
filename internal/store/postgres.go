// Package store persists trip conversations in Postgres and serialises writers
// per trip with a Redis lock.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"destination-discovery/internal/models"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("not found")

const (
	queryTrip = `SELECT t.id, t.user_id, t.title, t.status, COALESCE(t.destination, ''), COALESCE(u.email, '')
		FROM trips t LEFT JOIN users u ON u.id = t.user_id
		WHERE t.id = $1 AND t.user_id = $2`

	queryConversation = `SELECT c.id, c.trip_id, c.created_at,
		s.current_stage, s.user_info, s.question_queue, s.qa_history, s.questions_asked, s.total_questions,
		s.destinations_text, s.question_grade, s.question_notes, s.dest_grade, s.dest_notes, s.created_at, s.updated_at
		FROM trip_conversations c JOIN conversation_states s ON s.conversation_id = c.id
		WHERE c.trip_id = $1`

	insertConversation = `INSERT INTO trip_conversations (id, trip_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (trip_id) DO NOTHING`

	upsertState = `INSERT INTO conversation_states (conversation_id, current_stage, user_info, question_queue, qa_history,
		questions_asked, total_questions, destinations_text, question_grade, question_notes, dest_grade, dest_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (conversation_id) DO UPDATE SET
			current_stage = EXCLUDED.current_stage,
			user_info = EXCLUDED.user_info,
			question_queue = EXCLUDED.question_queue,
			qa_history = EXCLUDED.qa_history,
			questions_asked = EXCLUDED.questions_asked,
			total_questions = EXCLUDED.total_questions,
			destinations_text = EXCLUDED.destinations_text,
			question_grade = EXCLUDED.question_grade,
			question_notes = EXCLUDED.question_notes,
			dest_grade = EXCLUDED.dest_grade,
			dest_notes = EXCLUDED.dest_notes,
			updated_at = EXCLUDED.updated_at`

	insertMessage = `INSERT INTO conversation_messages (id, conversation_id, is_user, content, timestamp) VALUES ($1, $2, $3, $4, $5)`

	insertRecommendations = `INSERT INTO recommendations (id, conversation_id, locations, grade, notes, created_at) VALUES ($1, $2, $3, $4, $5, $6)`

	updateTrip = `UPDATE trips SET status = COALESCE($2, status), destination = COALESCE($3, destination) WHERE id = $1`

	queryMessages = `SELECT id, conversation_id, is_user, content, timestamp FROM conversation_messages
		WHERE conversation_id = $1 ORDER BY timestamp, id`

	queryRecommendations = `SELECT id, conversation_id, locations, grade, notes, created_at FROM recommendations
		WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2`

	deleteConversation = `DELETE FROM trip_conversations WHERE trip_id = $1`

	resetTrip = `UPDATE trips SET status = $2, destination = NULL WHERE id = $1`
)

type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// EnsureSchema creates the conversation tables when they are missing.
func (s *ConversationStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// LoadTrip returns the trip if it belongs to userID.
func (s *ConversationStore) LoadTrip(ctx context.Context, tripID, userID int64) (*models.Trip, error) {
	var t models.Trip
	err := s.db.QueryRowContext(ctx, queryTrip, tripID, userID).Scan(
		&t.ID, &t.UserID, &t.Title, &t.Status, &t.Destination, &t.OwnerEmail,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load trip %d: %w", tripID, err)
	}
	return &t, nil
}

// LoadConversation returns the conversation of a trip and its state record.
func (s *ConversationStore) LoadConversation(ctx context.Context, tripID int64) (*models.Conversation, *models.ConversationState, error) {
	var (
		conv                                     models.Conversation
		st                                       models.ConversationState
		stage                                    string
		queue, history, questionNotes, destNotes []byte
	)
	err := s.db.QueryRowContext(ctx, queryConversation, tripID).Scan(
		&conv.ID, &conv.TripID, &conv.CreatedAt,
		&stage, &st.UserInfo, &queue, &history, &st.QuestionsAsked, &st.TotalQuestions,
		&st.DestinationsText, &st.QuestionGrade, &questionNotes, &st.DestGrade, &destNotes, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("load conversation for trip %d: %w", tripID, err)
	}

	st.ConversationID = conv.ID
	st.Stage = models.Stage(stage)
	st.QuestionQueue = []string{}
	st.QAHistory = []models.QAPair{}
	for _, col := range []struct {
		name string
		raw  []byte
		dst  interface{}
	}{
		{"question_queue", queue, &st.QuestionQueue},
		{"qa_history", history, &st.QAHistory},
		{"question_notes", questionNotes, &st.QuestionNotes},
		{"dest_notes", destNotes, &st.DestNotes},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", col.name, err)
		}
	}
	return &conv, &st, nil
}

// SaveTurn writes everything a processed message produced in one transaction.
func (s *ConversationStore) SaveTurn(ctx context.Context, turn *models.Turn) error {
	if turn.State == nil || turn.Conversation == nil {
		return errors.New("save turn: conversation and state are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn: %w", err)
	}
	defer tx.Rollback()

	if turn.NewConversation {
		if _, err := tx.ExecContext(ctx, insertConversation, turn.Conversation.ID, turn.TripID, turn.Conversation.CreatedAt); err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
	}

	if err := saveState(ctx, tx, turn.State); err != nil {
		return err
	}

	for _, m := range turn.Messages {
		if _, err := tx.ExecContext(ctx, insertMessage, m.ID, turn.Conversation.ID, m.IsUser, m.Content, m.Timestamp); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if rec := turn.Recommendations; rec != nil {
		locations, err := json.Marshal(rec.Locations)
		if err != nil {
			return fmt.Errorf("encode locations: %w", err)
		}
		notes, err := jsonList(rec.Notes)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertRecommendations, rec.ID, turn.Conversation.ID, locations, rec.Grade, notes, rec.CreatedAt); err != nil {
			return fmt.Errorf("insert recommendations: %w", err)
		}
	}

	if upd := turn.Trip; upd != nil {
		if _, err := tx.ExecContext(ctx, updateTrip, turn.TripID, nullString(upd.Status), nullString(upd.Destination)); err != nil {
			return fmt.Errorf("update trip: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}

func saveState(ctx context.Context, tx *sql.Tx, st *models.ConversationState) error {
	queue, err := jsonList(st.QuestionQueue)
	if err != nil {
		return err
	}
	history, err := json.Marshal(st.QAHistory)
	if err != nil {
		return fmt.Errorf("encode qa_history: %w", err)
	}
	if st.QAHistory == nil {
		history = []byte("[]")
	}
	questionNotes, err := jsonList(st.QuestionNotes)
	if err != nil {
		return err
	}
	destNotes, err := jsonList(st.DestNotes)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, upsertState,
		st.ConversationID, string(st.Stage), st.UserInfo, queue, history,
		st.QuestionsAsked, st.TotalQuestions, st.DestinationsText,
		st.QuestionGrade, questionNotes, st.DestGrade, destNotes, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// ListMessages returns the conversation's messages oldest first.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, queryMessages, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.IsUser, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListRecommendations returns up to limit generations, newest first.
func (s *ConversationStore) ListRecommendations(ctx context.Context, conversationID string, limit int) ([]models.Recommendations, error) {
	rows, err := s.db.QueryContext(ctx, queryRecommendations, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	out := []models.Recommendations{}
	for rows.Next() {
		var (
			r                models.Recommendations
			locations, notes []byte
		)
		if err := rows.Scan(&r.ID, &r.ConversationID, &locations, &r.Grade, &notes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recommendations: %w", err)
		}
		if err := json.Unmarshal(locations, &r.Locations); err != nil {
			return nil, fmt.Errorf("decode locations: %w", err)
		}
		if len(notes) > 0 {
			if err := json.Unmarshal(notes, &r.Notes); err != nil {
				return nil, fmt.Errorf("decode notes: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRecommendations returns the newest generation or ErrNotFound.
func (s *ConversationStore) LatestRecommendations(ctx context.Context, conversationID string) (*models.Recommendations, error) {
	recs, err := s.ListRecommendations(ctx, conversationID, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// ResetConversation deletes the trip's conversation with everything hanging
// off it and puts the trip back into planning without a destination.
func (s *ConversationStore) ResetConversation(ctx context.Context, tripID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteConversation, tripID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, resetTrip, tripID, models.TripStatusPlanning); err != nil {
		return fmt.Errorf("reset trip: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

func jsonList(v []string) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return b, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
