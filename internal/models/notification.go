package models

import "time"

const EventDestinationCommitted = "destination_committed"

// CommitmentEvent is published once a user locks in a destination.
type CommitmentEvent struct {
	EventType      string    `json:"eventType"`
	TripID         int64     `json:"tripId"`
	TripTitle      string    `json:"tripTitle"`
	UserID         int64     `json:"userId"`
	ConversationID string    `json:"conversationId"`
	Destination    Location  `json:"destination"`
	OwnerEmail     string    `json:"-"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type Notification struct {
	Channel   string `json:"channel"` // "sns" or "email"
	Status    string `json:"status"`  // "sent", "failed", "disabled"
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}
