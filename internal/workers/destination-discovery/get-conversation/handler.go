package getconversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"destination-discovery/internal/common/config"
	"destination-discovery/internal/common/errors"
	"destination-discovery/internal/common/logger"
	"destination-discovery/internal/common/metrics"
	"destination-discovery/internal/common/observability"
	"destination-discovery/internal/conversation"
	"destination-discovery/internal/models"
)

const TaskType = "discovery-get-conversation"

type Service interface {
	GetConversation(ctx context.Context, tripID, userID int64) (*conversation.ConversationView, error)
}

type Handler struct {
	config       *Config
	service      Service
	errorHandler *errors.ErrorHandler
	obs          *observability.Observability
	logger       logger.Logger
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	Service       Service
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := opts.CustomConfig
	if cfg == nil {
		cfg = createConfigFromAppConfig(opts.AppConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Service == nil {
		return nil, fmt.Errorf("%s: conversation service is required", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	return &Handler{
		config:       cfg,
		service:      opts.Service,
		errorHandler: errors.NewErrorHandler(log).WithMaxRetries(cfg.MaxRetries),
		obs:          opts.Observability,
		logger:       log,
	}, nil
}

func (h *Handler) Config() *Config {
	return h.config
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var output *Output
	input, err := parseInput(job)
	if err == nil {
		output, err = h.Execute(ctx, input)
	}

	if err != nil {
		bpmnErr := h.errorHandler.HandleJobError(context.Background(), client, job, err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
		h.obs.RecordJob(ctx, TaskType, "failed", time.Since(start))
		return
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err == nil {
		_, err = cmd.Send(context.Background())
	}
	if err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.obs.RecordJob(ctx, TaskType, "completed", time.Since(start))
}

func parseInput(job entities.Job) (*Input, error) {
	if result := inputSchema.ValidateJSON([]byte(job.Variables)); !result.Valid {
		return nil, errors.NewValidationFailedError(result.Error())
	}
	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, errors.NewInputParsingFailedError(err)
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	view, err := h.service.GetConversation(ctx, input.TripID, input.UserID)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Found:          view.Found,
		Message:        view.Message,
		ConversationID: view.ConversationID,
		TripID:         view.TripID,
		TripTitle:      view.TripTitle,
		Messages:       view.Messages,
		Destinations:   view.Destinations,
		History:        view.History,
	}
	if out.Messages == nil {
		out.Messages = []models.Message{}
	}
	if st := view.State; st != nil {
		out.State = &State{
			CurrentStage:   string(st.Stage),
			Progress:       st.Progress(),
			QuestionsAsked: st.QuestionsAsked,
			TotalQuestions: st.TotalQuestions,
			IsComplete:     st.IsComplete(),
		}
	}

	h.logger.Info("conversation fetched", map[string]interface{}{
		"tripId":   input.TripID,
		"found":    out.Found,
		"messages": len(out.Messages),
	})
	return out, nil
}
