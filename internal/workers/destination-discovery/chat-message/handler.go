package chatmessage

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

const TaskType = "discovery-chat-message"

// commandTimeout bounds the complete/fail command, which is sent on a fresh
// context because the job context may already be done.
const commandTimeout = 10 * time.Second

type Service interface {
	HandleMessage(ctx context.Context, req conversation.MessageRequest) (*conversation.MessageResult, error)
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

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.run(ctx, job)

	cmdCtx, cmdCancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cmdCancel()

	if err != nil {
		bpmnErr := h.errorHandler.HandleJobError(cmdCtx, client, job, err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
		h.obs.RecordJob(ctx, TaskType, "failed", time.Since(start))
		return
	}

	h.completeJob(cmdCtx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.obs.RecordJob(ctx, TaskType, "completed", time.Since(start))
}

func (h *Handler) run(ctx context.Context, job entities.Job) (*Output, error) {
	input, err := parseInput(job)
	if err != nil {
		return nil, err
	}
	return h.Execute(ctx, input)
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

// Execute runs one chat turn and shapes the result for the process.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.service.HandleMessage(ctx, conversation.MessageRequest{
		TripID:  input.TripID,
		UserID:  input.UserID,
		Message: input.Message,
	})
	if err != nil {
		return nil, err
	}

	out := &Output{
		UserMessage:    res.UserMessage,
		AIMessage:      res.AIMessage,
		ConversationID: res.ConversationID,
		Stage:          string(res.Stage),
		Progress:       res.Progress,
		Destinations:   res.Destinations,
		Grade:          res.Grade,
		Notes:          res.Notes,
	}
	if res.Stage == models.StageAskingClarifications {
		out.Metadata = &QuestionMetadata{
			QuestionNumber: res.QuestionNumber,
			TotalQuestions: res.TotalQuestions,
		}
	}
	return out, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":         job.Key,
		"conversationId": output.ConversationID,
		"stage":          output.Stage,
	})
}
