// internal/workers/communication/send-product-alerts/handler.go
package sendproductalerts

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

const TaskType = "send-product-alerts"

type ProductLoader interface {
	GetByID(ctx context.Context, id int64) (*models.Product, error)
}

type Dispatcher interface {
	SendProductAlertEmailForUser(ctx context.Context, product *models.Product) (*communication.AlertRunResult, error)
}

type Handler struct {
	config       *Config
	products     ProductLoader
	dispatcher   Dispatcher
	errorHandler *apperrors.ErrorHandler
	obs          *observability.Observability
	logger       logger.Logger
	now          func() time.Time
}

type HandlerOptions struct {
	Config        *Config
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

// Execute runs the back-in-stock fan-out for one product. Alerts closed before a
// failure stay closed; a retried job only sees the alerts still active.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	product, err := h.products.GetByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperrors.NewNotFoundError(apperrors.ErrCodeProductNotFound, "product", input.ProductID)
		}
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}

	result, err := h.dispatcher.SendProductAlertEmailForUser(ctx, product)
	if err != nil {
		if result != nil {
			h.logger.Warn("product alert run stopped early", map[string]interface{}{
				"productId": product.ID,
				"closed":    result.Closed,
				"error":     err.Error(),
			})
		}
		return nil, err
	}

	h.obs.RecordDispatched(ctx, string(models.EventProductAlert), result.Messages)

	return &Output{
		RunID:          uuid.NewString(),
		ProductID:      product.ID,
		AlertRunResult: *result,
		ProcessedAt:    h.now().UTC().Format(time.RFC3339),
	}, nil
}
