package sendalertconfirmation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "comm-dispatch/internal/common/errors"
	"comm-dispatch/internal/common/logger"
	"comm-dispatch/internal/communication"
	"comm-dispatch/internal/models"
)

type MockAlertLoader struct {
	mock.Mock
}

func (m *MockAlertLoader) GetByID(ctx context.Context, id int64) (*models.ProductAlert, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProductAlert), args.Error(1)
}

type MockProductLoader struct {
	mock.Mock
}

func (m *MockProductLoader) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) SendProductAlertConfirmationEmailForUser(ctx context.Context, alert *models.ProductAlert, extra map[string]interface{}) (*models.EmailMessage, error) {
	args := m.Called(ctx, alert, extra)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailMessage), args.Error(1)
}

// newTestHandler stubs product 10, which guestAlert points at.
func newTestHandler(t *testing.T) (*Handler, *MockAlertLoader, *MockDispatcher) {
	alerts := &MockAlertLoader{}
	products := &MockProductLoader{}
	dispatcher := &MockDispatcher{}
	products.On("GetByID", mock.Anything, int64(10)).Return(lamp(), nil).Maybe()
	h := NewHandler(HandlerOptions{
		Config:     &Config{Enabled: true, Timeout: 5 * time.Second},
		Alerts:     alerts,
		Products:   products,
		Dispatcher: dispatcher,
		Logger:     logger.NewTestLogger(t),
	})
	return h, alerts, dispatcher
}

func lamp() *models.Product {
	return &models.Product{ID: 10, Title: "Brass Desk Lamp"}
}

func guestAlert() *models.ProductAlert {
	return &models.ProductAlert{ID: 3, ProductID: 10, Email: "guest@example.com", Key: "abc", Status: models.AlertUnconfirmed}
}

func TestParseInput(t *testing.T) {
	input, err := ParseInput(`{"alertId":3,"context":{"confirmUrl":"https://shop.example.com/alerts/confirm/abc"}}`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), input.AlertID)
	assert.NotEmpty(t, input.Context["confirmUrl"])

	_, err = ParseInput(`{"alertId":-1}`)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, communication.JobError(err).Code)
}

func TestHandler_Execute_Sent(t *testing.T) {
	h, alerts, dispatcher := newTestHandler(t)
	alert := guestAlert()
	alerts.On("GetByID", mock.Anything, int64(3)).Return(alert, nil)
	dispatcher.On("SendProductAlertConfirmationEmailForUser", mock.Anything, alert, mock.MatchedBy(func(extra map[string]interface{}) bool {
		product, ok := extra["product"].(*models.Product)
		return ok && product.Title == "Brass Desk Lamp" &&
			extra["alert"] == alert && extra["confirmUrl"] == "https://shop.example.com/c/abc"
	})).Return(&models.EmailMessage{MessageID: "ses-3"}, nil)

	output, err := h.Execute(context.Background(), &Input{
		AlertID: 3,
		// a caller supplied "alert" never replaces the stored one
		Context: map[string]interface{}{"confirmUrl": "https://shop.example.com/c/abc", "alert": "spoofed", "product": "spoofed"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, output.Status)
	assert.Equal(t, "ses-3", output.MessageID)
	assert.Empty(t, output.Reason)
	dispatcher.AssertExpectations(t)
}

func TestHandler_Execute_Skips(t *testing.T) {
	registered := guestAlert()
	registered.User = &models.User{ID: 42, Email: "jane@example.com"}
	registered.Email = ""

	confirmed := guestAlert()
	confirmed.Status = models.AlertActive

	noAddress := guestAlert()
	noAddress.Email = ""

	tests := []struct {
		name   string
		alert  *models.ProductAlert
		reason string
	}{
		{name: "registered user", alert: registered, reason: ReasonRegisteredUser},
		{name: "already active", alert: confirmed, reason: ReasonAlreadyConfirmed},
		{name: "guest without address", alert: noAddress, reason: ReasonNoEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, alerts, dispatcher := newTestHandler(t)
			alerts.On("GetByID", mock.Anything, tt.alert.ID).Return(tt.alert, nil)

			output, err := h.Execute(context.Background(), &Input{AlertID: tt.alert.ID})
			require.NoError(t, err)
			assert.Equal(t, StatusSkipped, output.Status)
			assert.Equal(t, tt.reason, output.Reason)
			dispatcher.AssertNotCalled(t, "SendProductAlertConfirmationEmailForUser", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandler_Execute_NothingSent(t *testing.T) {
	h, alerts, dispatcher := newTestHandler(t)
	alert := guestAlert()
	alerts.On("GetByID", mock.Anything, int64(3)).Return(alert, nil)
	dispatcher.On("SendProductAlertConfirmationEmailForUser", mock.Anything, alert, mock.Anything).Return(nil, nil)

	output, err := h.Execute(context.Background(), &Input{AlertID: 3})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, output.Status)
	assert.Equal(t, ReasonNoContent, output.Reason)
}

func TestHandler_Execute_Errors(t *testing.T) {
	h, alerts, dispatcher := newTestHandler(t)
	alert := guestAlert()
	alerts.On("GetByID", mock.Anything, int64(404)).Return(nil, models.ErrNotFound)
	alerts.On("GetByID", mock.Anything, int64(3)).Return(alert, nil)
	dispatcher.On("SendProductAlertConfirmationEmailForUser", mock.Anything, alert, mock.Anything).
		Return(nil, errors.Join(communication.ErrEmailDelivery, errors.New("throttled")))

	_, err := h.Execute(context.Background(), &Input{AlertID: 404})
	assert.Equal(t, apperrors.ErrCodeAlertNotFound, communication.JobError(err).Code)

	_, err = h.Execute(context.Background(), &Input{AlertID: 3})
	assert.Equal(t, apperrors.ErrCodeEmailSendFailed, communication.JobError(err).Code)
}

func TestHandler_Execute_ProductErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{name: "product gone", err: models.ErrNotFound, code: apperrors.ErrCodeProductNotFound},
		{name: "query failed", err: errors.New("connection reset"), code: apperrors.ErrCodeDatabaseQueryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := &MockAlertLoader{}
			products := &MockProductLoader{}
			dispatcher := &MockDispatcher{}
			h := NewHandler(HandlerOptions{
				Config:     &Config{Enabled: true, Timeout: 5 * time.Second},
				Alerts:     alerts,
				Products:   products,
				Dispatcher: dispatcher,
				Logger:     logger.NewTestLogger(t),
			})
			alerts.On("GetByID", mock.Anything, int64(3)).Return(guestAlert(), nil)
			products.On("GetByID", mock.Anything, int64(10)).Return(nil, tt.err)

			_, err := h.Execute(context.Background(), &Input{AlertID: 3})
			require.Error(t, err)
			assert.Equal(t, tt.code, communication.JobError(err).Code)
			dispatcher.AssertNotCalled(t, "SendProductAlertConfirmationEmailForUser", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}
