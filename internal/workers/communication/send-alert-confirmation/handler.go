// internal/workers/communication/send-alert-confirmation/handler.go
package sendalertconfirmation

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

const TaskType = "send-alert-confirmation"

type AlertLoader interface {
	GetByID(ctx context.Context, id int64) (*models.ProductAlert, error)
}

type ProductLoader interface {
	GetByID(ctx context.Context, id int64) (*models.Product, error)
}

type Dispatcher interface {
	SendProductAlertConfirmationEmailForUser(ctx context.Context, alert *models.ProductAlert, extra map[string]interface{}) (*models.EmailMessage, error)
}

type Handler struct {
	config       *Config
	alerts       AlertLoader
	products     ProductLoader
	dispatcher   Dispatcher
	errorHandler *apperrors.ErrorHandler
	obs          *observability.Observability
	logger       logger.Logger
	now          func() time.Time
}

type HandlerOptions struct {
	Config        *Config
	Alerts        AlertLoader
	Products      ProductLoader
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
		alerts:       opts.Alerts,
		products:     opts.Products,
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

// Execute asks a guest to confirm a new alert. Registered users' alerts are
// active from the start and are skipped, as are alerts past confirmation.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	alert, err := h.alerts.GetByID(ctx, input.AlertID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperrors.NewNotFoundError(apperrors.ErrCodeAlertNotFound, "alert", input.AlertID)
		}
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}

	output := &Output{
		DispatchID:  uuid.NewString(),
		AlertID:     alert.ID,
		Status:      StatusSkipped,
		ProcessedAt: h.now().UTC().Format(time.RFC3339),
	}

	switch {
	case !alert.IsAnonymous():
		output.Reason = ReasonRegisteredUser
	case alert.Status != models.AlertUnconfirmed:
		output.Reason = ReasonAlreadyConfirmed
	case alert.Email == "":
		output.Reason = ReasonNoEmail
	}
	if output.Reason != "" {
		h.logger.Info("confirmation not needed", map[string]interface{}{
			"alertId": alert.ID,
			"reason":  output.Reason,
		})
		return output, nil
	}

	product, err := h.products.GetByID(ctx, alert.ProductID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperrors.NewNotFoundError(apperrors.ErrCodeProductNotFound, "product", alert.ProductID)
		}
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}

	extra := map[string]interface{}{"alert": alert, "product": product}
	for k, v := range input.Context {
		if _, reserved := extra[k]; !reserved {
			extra[k] = v
		}
	}

	sent, err := h.dispatcher.SendProductAlertConfirmationEmailForUser(ctx, alert, extra)
	if err != nil {
		return nil, err
	}
	if sent == nil {
		output.Reason = ReasonNoContent
		return output, nil
	}

	output.Status = StatusSent
	output.MessageID = sent.MessageID
	h.obs.RecordDispatched(ctx, string(models.EventProductAlertConfirmation), 1)
	return output, nil
}
