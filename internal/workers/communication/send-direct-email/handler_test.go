package senddirectemail

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "comm-dispatch/internal/common/errors"
	"comm-dispatch/internal/common/logger"
	"comm-dispatch/internal/communication"
	"comm-dispatch/internal/communication/templates"
	"comm-dispatch/internal/models"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) GetMessages(ctx context.Context, code models.EventCode, extra map[string]interface{}) (*models.Messages, error) {
	args := m.Called(ctx, code, extra)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Messages), args.Error(1)
}

func (m *MockDispatcher) DispatchDirectMessages(ctx context.Context, recipient string, messages *models.Messages) (*models.EmailMessage, error) {
	args := m.Called(ctx, recipient, messages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailMessage), args.Error(1)
}

func newTestHandler(t *testing.T) (*Handler, *MockDispatcher) {
	dispatcher := &MockDispatcher{}
	h := NewHandler(HandlerOptions{
		Config:     &Config{Enabled: true, Timeout: 5 * time.Second},
		Dispatcher: dispatcher,
		Logger:     logger.NewTestLogger(t),
	})
	return h, dispatcher
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		vars    string
		wantErr bool
	}{
		{name: "event code", vars: `{"recipient":"guest@example.com","eventCode":"order_placed","context":{"order":{"number":"100042"}}}`},
		{name: "inline parts", vars: `{"recipient":"guest@example.com","subject":"Hello","body":"Plain"}`},
		{name: "missing recipient", vars: `{"subject":"Hello","body":"Plain"}`, wantErr: true},
		{name: "bad recipient", vars: `{"recipient":"not-an-address","subject":"Hello"}`, wantErr: true},
		{name: "neither code nor subject", vars: `{"recipient":"guest@example.com","body":"Plain"}`, wantErr: true},
		{name: "code with spaces", vars: `{"recipient":"guest@example.com","eventCode":"ORDER PLACED"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := ParseInput(tt.vars)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrCodeInvalidInput, communication.JobError(err).Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "guest@example.com", input.Recipient)
		})
	}
}

func TestHandler_Execute_EventCode(t *testing.T) {
	h, dispatcher := newTestHandler(t)
	ctxData := map[string]interface{}{"order": map[string]interface{}{"number": "100042"}}
	rendered := &models.Messages{Subject: "Order 100042", Body: "Thanks"}

	dispatcher.On("GetMessages", mock.Anything, models.EventOrderPlaced, ctxData).Return(rendered, nil)
	dispatcher.On("DispatchDirectMessages", mock.Anything, "guest@example.com", rendered).
		Return(&models.EmailMessage{MessageID: "ses-1"}, nil)

	output, err := h.Execute(context.Background(), &Input{
		Recipient: "guest@example.com",
		EventCode: "order_placed",
		Context:   ctxData,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, output.Status)
	assert.Equal(t, "ORDER_PLACED", output.EventCode)
	assert.Equal(t, "ses-1", output.MessageID)
	assert.NotEmpty(t, output.DispatchID)
	dispatcher.AssertExpectations(t)
}

func TestHandler_Execute_InlineParts(t *testing.T) {
	h, dispatcher := newTestHandler(t)
	dispatcher.On("DispatchDirectMessages", mock.Anything, "guest@example.com", &models.Messages{
		Subject: "Your invoice",
		Body:    "See attached",
		HTML:    "<p>See attached</p>",
	}).Return(&models.EmailMessage{MessageID: "ses-2"}, nil)

	output, err := h.Execute(context.Background(), &Input{
		Recipient: "guest@example.com",
		Subject:   "  Your invoice\n",
		Body:      "See attached",
		HTML:      "<p>See attached</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, output.Status)
	assert.Empty(t, output.EventCode)
	dispatcher.AssertNotCalled(t, "GetMessages", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_Execute_NothingToSend(t *testing.T) {
	h, dispatcher := newTestHandler(t)
	dispatcher.On("GetMessages", mock.Anything, models.EventCode("UNUSED_EVENT"), mock.Anything).Return(&models.Messages{}, nil)
	dispatcher.On("DispatchDirectMessages", mock.Anything, "guest@example.com", &models.Messages{}).Return(nil, nil)

	output, err := h.Execute(context.Background(), &Input{Recipient: "guest@example.com", EventCode: "unused_event"})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, output.Status)
	assert.Equal(t, ReasonNoContent, output.Reason)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name      string
		renderErr error
		sendErr   error
		code      apperrors.ErrorCode
	}{
		{
			name:      "broken template",
			renderErr: fmt.Errorf("render ORDER_PLACED messages: %w", templates.ErrTemplateRender),
			code:      apperrors.ErrCodeTemplateRenderFailed,
		},
		{
			name:    "delivery failed",
			sendErr: errors.Join(communication.ErrEmailDelivery, errors.New("throttled")),
			code:    apperrors.ErrCodeEmailSendFailed,
		},
		{
			name:    "audit write failed",
			sendErr: fmt.Errorf("%w: communication event: %w", communication.ErrRecordWrite, errors.New("disk full")),
			code:    apperrors.ErrCodeDatabaseInsertFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, dispatcher := newTestHandler(t)
			messages := &models.Messages{Subject: "Order", Body: "Thanks"}
			if tt.renderErr != nil {
				dispatcher.On("GetMessages", mock.Anything, models.EventOrderPlaced, mock.Anything).Return(nil, tt.renderErr)
			} else {
				dispatcher.On("GetMessages", mock.Anything, models.EventOrderPlaced, mock.Anything).Return(messages, nil)
				dispatcher.On("DispatchDirectMessages", mock.Anything, "guest@example.com", messages).Return(nil, tt.sendErr)
			}

			_, err := h.Execute(context.Background(), &Input{Recipient: "guest@example.com", EventCode: "ORDER_PLACED"})
			require.Error(t, err)
			assert.Equal(t, tt.code, communication.JobError(err).Code)
		})
	}
}
