package chatmessage

import "destination-discovery/internal/models"

type Input struct {
	TripID  int64  `json:"tripId"`
	UserID  int64  `json:"userId"`
	Message string `json:"message"`
}

type Output struct {
	UserMessage    models.Message    `json:"userMessage"`
	AIMessage      models.Message    `json:"aiMessage"`
	ConversationID string            `json:"conversationId"`
	Stage          string            `json:"stage"`
	Progress       int               `json:"progress"`
	Metadata       *QuestionMetadata `json:"metadata,omitempty"`
	Destinations   []models.Location `json:"destinations,omitempty"`
	Grade          string            `json:"grade,omitempty"`
	Notes          []string          `json:"notes,omitempty"`
}

type QuestionMetadata struct {
	QuestionNumber int `json:"questionNumber"`
	TotalQuestions int `json:"totalQuestions"`
}
