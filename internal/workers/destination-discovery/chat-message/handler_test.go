package chatmessage

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"destination-discovery/internal/common/camunda/jobtest"
	"destination-discovery/internal/common/config"
	"destination-discovery/internal/common/errors"
	"destination-discovery/internal/common/logger"
	"destination-discovery/internal/conversation"
	"destination-discovery/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) HandleMessage(ctx context.Context, req conversation.MessageRequest) (*conversation.MessageResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.MessageResult), args.Error(1)
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		CustomConfig: &Config{Enabled: true, MaxJobsActive: 1, Timeout: 5 * time.Second},
		Service:      svc,
		Logger:       logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	return h
}

func askingResult() *conversation.MessageResult {
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &conversation.MessageResult{
		UserMessage:    models.Message{ID: "m-1", IsUser: true, Content: "I love food", Timestamp: ts},
		AIMessage:      models.Message{ID: "m-2", Content: "What is your budget?", Timestamp: ts},
		ConversationID: "c-1",
		Stage:          models.StageAskingClarifications,
		Progress:       33,
		QuestionNumber: 1,
		TotalQuestions: 3,
	}
}

func TestHandle_CompletesWithTurnResult(t *testing.T) {
	svc := &MockService{}
	svc.On("HandleMessage", mock.Anything, conversation.MessageRequest{TripID: 5, UserID: 2, Message: "I love food"}).
		Return(askingResult(), nil)

	client := jobtest.NewJobClient()
	job := jobtest.NewJob(1, TaskType, 3, map[string]interface{}{"tripId": 5, "userId": 2, "message": "I love food"})

	newTestHandler(t, svc).Handle(client, job)

	require.Len(t, client.Gateway.Completed, 1)
	vars := client.Gateway.CompletedVariables(0)
	assert.Equal(t, "c-1", vars["conversationId"])
	assert.Equal(t, "asking_clarifications", vars["stage"])
	assert.Equal(t, float64(33), vars["progress"])
	assert.Equal(t, map[string]interface{}{"questionNumber": float64(1), "totalQuestions": float64(3)}, vars["metadata"])
	assert.Equal(t, "What is your budget?", vars["aiMessage"].(map[string]interface{})["content"])
	assert.Equal(t, true, vars["userMessage"].(map[string]interface{})["isUser"])
	assert.NotContains(t, vars, "destinations")
	svc.AssertExpectations(t)
}

func TestExecute_DestinationsComplete(t *testing.T) {
	svc := &MockService{}
	svc.On("HandleMessage", mock.Anything, mock.Anything).Return(&conversation.MessageResult{
		ConversationID: "c-1",
		Stage:          models.StageDestinationsComplete,
		Progress:       100,
		Destinations:   []models.Location{{Name: "Paris", Country: "France"}},
		Grade:          "fail",
		Notes:          []string{"Too expensive"},
	}, nil)

	out, err := newTestHandler(t, svc).Execute(context.Background(), &Input{TripID: 5, UserID: 2, Message: "Ten days"})
	require.NoError(t, err)
	assert.Nil(t, out.Metadata)
	assert.Equal(t, 100, out.Progress)
	assert.Equal(t, "Paris", out.Destinations[0].Name)
	assert.Equal(t, []string{"Too expensive"}, out.Notes)
}

func TestHandle_InvalidInputIsThrown(t *testing.T) {
	tests := []struct {
		name string
		vars interface{}
	}{
		{"missing message", map[string]interface{}{"tripId": 5, "userId": 2}},
		{"empty message", map[string]interface{}{"tripId": 5, "userId": 2, "message": ""}},
		{"message too long", map[string]interface{}{"tripId": 5, "userId": 2, "message": strings.Repeat("x", 4001)}},
		{"trip id not a number", map[string]interface{}{"tripId": "five", "userId": 2, "message": "hi"}},
		{"not json", "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockService{}
			client := jobtest.NewJobClient()

			newTestHandler(t, svc).Handle(client, jobtest.NewJob(2, TaskType, 3, tt.vars))

			require.Len(t, client.Gateway.Thrown, 1)
			assert.Equal(t, "VALIDATION_FAILED", client.Gateway.Thrown[0].ErrorCode)
			assert.Empty(t, client.Gateway.Completed)
			svc.AssertNotCalled(t, "HandleMessage", mock.Anything, mock.Anything)
		})
	}
}

func TestHandle_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantFailed bool
		wantCode   string
	}{
		{"busy conversation is retried", errors.NewConversationBusyError(5), true, "CONVERSATION_BUSY"},
		{"gateway failure is retried", errors.NewLLMGatewayFailedError(stderrors.New("503")), true, "LLM_GATEWAY_FAILED"},
		{"blank message is thrown", errors.NewInvalidMessageError("message must not be empty"), false, "INVALID_MESSAGE"},
		{"missing trip is thrown", errors.NewTripNotFoundError(5), false, "TRIP_NOT_FOUND"},
		{"unknown error is thrown", stderrors.New("boom"), false, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockService{}
			svc.On("HandleMessage", mock.Anything, mock.Anything).Return(nil, tt.err)
			client := jobtest.NewJobClient()

			newTestHandler(t, svc).Handle(client, jobtest.NewJob(3, TaskType, 3,
				map[string]interface{}{"tripId": 5, "userId": 2, "message": "  "}))

			if tt.wantFailed {
				require.Len(t, client.Gateway.Failed, 1)
				assert.Contains(t, client.Gateway.Failed[0].Variables, tt.wantCode)
			} else {
				require.Len(t, client.Gateway.Thrown, 1)
				assert.Equal(t, tt.wantCode, client.Gateway.Thrown[0].ErrorCode)
			}
			assert.Empty(t, client.Gateway.Completed)
		})
	}
}

func TestNewHandler(t *testing.T) {
	_, err := NewHandler(HandlerOptions{Logger: logger.NewTestLogger(t)})
	assert.Error(t, err)

	h, err := NewHandler(HandlerOptions{
		AppConfig: &config.Config{Workers: map[string]config.WorkerConfig{
			TaskType: {Enabled: true, MaxJobsActive: 7, Timeout: 90000},
		}},
		Service: &MockService{},
		Logger:  logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	assert.Equal(t, 7, h.Config().MaxJobsActive)
	assert.Equal(t, 90*time.Second, h.Config().Timeout)
	assert.Equal(t, 3, h.Config().MaxRetries)

	_, err = NewHandler(HandlerOptions{
		CustomConfig: &Config{Timeout: 0, MaxJobsActive: 1},
		Service:      &MockService{},
		Logger:       logger.NewTestLogger(t),
	})
	assert.Error(t, err)
}

func TestNewHandler_MissingWorkerEntryStaysEnabled(t *testing.T) {
	h, err := NewHandler(HandlerOptions{
		AppConfig: &config.Config{Workers: map[string]config.WorkerConfig{
			"discovery-get-conversation": {Enabled: false},
		}},
		Service: &MockService{},
		Logger:  logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	assert.True(t, h.Config().Enabled)
	assert.Equal(t, 3*time.Minute, h.Config().Timeout)

	h, err = NewHandler(HandlerOptions{
		AppConfig: &config.Config{Workers: map[string]config.WorkerConfig{
			TaskType: {Enabled: false},
		}},
		Service: &MockService{},
		Logger:  logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	assert.False(t, h.Config().Enabled)
}
