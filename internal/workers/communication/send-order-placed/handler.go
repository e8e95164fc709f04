// internal/workers/communication/send-order-placed/handler.go
package sendorderplaced

import (
	"context"
	"encoding/json"
	"errors"
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

const TaskType = "send-order-placed"

type OrderLoader interface {
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
}

type Dispatcher interface {
	SendOrderPlacedEmailForUser(ctx context.Context, order *models.Order, extra map[string]interface{}, opts ...communication.OrderOption) (*communication.DispatchResult, error)
}

type Handler struct {
	config       *Config
	orders       OrderLoader
	dispatcher   Dispatcher
	errorHandler *apperrors.ErrorHandler
	obs          *observability.Observability
	logger       logger.Logger
	now          func() time.Time
}

type HandlerOptions struct {
	Config        *Config
	Orders        OrderLoader
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
		orders:       opts.Orders,
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

// ParseInput validates the job variables and decodes them.
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	order, err := h.orders.GetByNumber(ctx, input.OrderNumber)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperrors.NewNotFoundError(apperrors.ErrCodeOrderNotFound, "order", input.OrderNumber)
		}
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}

	var opts []communication.OrderOption
	if input.EmailAddress != "" {
		opts = append(opts, communication.WithEmailAddress(input.EmailAddress))
	}

	result, err := h.dispatcher.SendOrderPlacedEmailForUser(ctx, order, input.Context, opts...)
	if err != nil {
		return nil, err
	}

	output := &Output{
		DispatchID:  uuid.NewString(),
		OrderNumber: order.Number,
		Status:      StatusSkipped,
		ProcessedAt: h.now().UTC().Format(time.RFC3339),
	}
	if result.Dispatched() {
		output.Status = StatusSent
		output.SMSSent = result.SMS
		if result.Email != nil {
			output.EmailSent = true
			output.MessageID = result.Email.MessageID
		}
		h.obs.RecordDispatched(ctx, string(models.EventOrderPlaced), 1)
	}

	h.logger.Info("order placed messages dispatched", map[string]interface{}{
		"orderNumber": order.Number,
		"dispatchId":  output.DispatchID,
		"status":      output.Status,
	})
	return output, nil
}
