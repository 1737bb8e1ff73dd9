package getconversation

import "destination-discovery/internal/models"

type Input struct {
	TripID int64 `json:"tripId"`
	UserID int64 `json:"userId"`
}

type Output struct {
	Found          bool                     `json:"found"`
	Message        string                   `json:"message,omitempty"`
	ConversationID string                   `json:"conversationId,omitempty"`
	TripID         int64                    `json:"tripId"`
	TripTitle      string                   `json:"tripTitle"`
	Messages       []models.Message         `json:"messages"`
	State          *State                   `json:"state,omitempty"`
	Destinations   []models.Location        `json:"destinations,omitempty"`
	History        []models.Recommendations `json:"history,omitempty"`
}

type State struct {
	CurrentStage   string `json:"currentStage"`
	Progress       int    `json:"progress"`
	QuestionsAsked int    `json:"questionsAsked"`
	TotalQuestions int    `json:"totalQuestions"`
	IsComplete     bool   `json:"isComplete"`
}
