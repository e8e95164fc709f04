// internal/workers/communication/send-direct-email/handler.go
package senddirectemail

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"comm-dispatch/internal/common/camunda"
	apperrors "comm-dispatch/internal/common/errors"
	"comm-dispatch/internal/common/logger"
	"comm-dispatch/internal/common/observability"
	"comm-dispatch/internal/communication"
	"comm-dispatch/internal/models"
)

const TaskType = "send-direct-email"

// directEvent labels dispatch metrics for inline messages.
const directEvent = "DIRECT"

type Dispatcher interface {
	GetMessages(ctx context.Context, code models.EventCode, extra map[string]interface{}) (*models.Messages, error)
	DispatchDirectMessages(ctx context.Context, recipient string, messages *models.Messages) (*models.EmailMessage, error)
}

type Handler struct {
	config       *Config
	dispatcher   Dispatcher
	errorHandler *apperrors.ErrorHandler
	obs          *observability.Observability
	logger       logger.Logger
	now          func() time.Time
}

type HandlerOptions struct {
	Config        *Config
	Dispatcher    Dispatcher
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) *Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	return &Handler{
		config:       opts.Config,
		dispatcher:   opts.Dispatcher,
		errorHandler: apperrors.NewErrorHandler(log),
		obs:          opts.Observability,
		logger:       log,
		now:          time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	tracker := camunda.TrackJob(h.obs, TaskType)
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := ParseInput(job.Variables)
	var output *Output
	if err == nil {
		output, err = h.Execute(ctx, input)
	}
	if err != nil {
		stdErr := communication.JobError(err)
		tracker.Done(ctx, camunda.StatusFailed, string(stdErr.Code))
		h.errorHandler.HandleJobError(ctx, client, job, stdErr)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
	}
	tracker.Done(ctx, camunda.StatusCompleted, "")
}

func ParseInput(variables string) (*Input, error) {
	result, err := InputSchema.Validate(variables)
	if err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	return &input, nil
}

// Execute emails an address that has no user account behind it. With an event
// code the event type's templates are rendered; otherwise the inline parts are
// sent as given.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	output := &Output{
		DispatchID:  uuid.NewString(),
		Recipient:   input.Recipient,
		Status:      StatusSkipped,
		ProcessedAt: h.now().UTC().Format(time.RFC3339),
	}

	var messages *models.Messages
	if input.EventCode != "" {
		code := models.EventCode(strings.ToUpper(input.EventCode))
		output.EventCode = string(code)

		rendered, err := h.dispatcher.GetMessages(ctx, code, input.Context)
		if err != nil {
			return nil, err
		}
		messages = rendered
	} else {
		messages = &models.Messages{
			Subject: strings.TrimSpace(input.Subject),
			Body:    input.Body,
			HTML:    input.HTML,
		}
	}

	sent, err := h.dispatcher.DispatchDirectMessages(ctx, input.Recipient, messages)
	if err != nil {
		return nil, err
	}
	if sent == nil {
		output.Reason = ReasonNoContent
		h.logger.Info("nothing to send", map[string]interface{}{
			"eventCode": output.EventCode,
		})
		return output, nil
	}

	output.Status = StatusSent
	output.MessageID = sent.MessageID
	event := output.EventCode
	if event == "" {
		event = directEvent
	}
	h.obs.RecordDispatched(ctx, event, 1)
	return output, nil
}
