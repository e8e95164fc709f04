package communication

import (
	"context"
	"fmt"

	"comm-dispatch/internal/models"
)

// UserEventCodes are the event codes SendUserEventEmail accepts.
var UserEventCodes = []models.EventCode{
	models.EventRegistration,
	models.EventPasswordReset,
	models.EventPasswordChanged,
	models.EventEmailChanged,
}

// IsUserEventCode reports whether code is sent through the registered user path.
func IsUserEventCode(code models.EventCode) bool {
	for _, c := range UserEventCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (d *Dispatcher) SendRegistrationEmailForUser(ctx context.Context, user *models.User, extra map[string]interface{}) (*DispatchResult, error) {
	return d.sendUserEvent(ctx, user, models.EventRegistration, extra)
}

func (d *Dispatcher) SendPasswordResetEmailForUser(ctx context.Context, user *models.User, extra map[string]interface{}) (*DispatchResult, error) {
	return d.sendUserEvent(ctx, user, models.EventPasswordReset, extra)
}

func (d *Dispatcher) SendPasswordChangedEmailForUser(ctx context.Context, user *models.User, extra map[string]interface{}) (*DispatchResult, error) {
	return d.sendUserEvent(ctx, user, models.EventPasswordChanged, extra)
}

func (d *Dispatcher) SendEmailChangedEmailForUser(ctx context.Context, user *models.User, extra map[string]interface{}) (*DispatchResult, error) {
	return d.sendUserEvent(ctx, user, models.EventEmailChanged, extra)
}

// SendUserEventEmail routes a user event code to its sender.
func (d *Dispatcher) SendUserEventEmail(ctx context.Context, user *models.User, code models.EventCode, extra map[string]interface{}) (*DispatchResult, error) {
	switch code {
	case models.EventRegistration:
		return d.SendRegistrationEmailForUser(ctx, user, extra)
	case models.EventPasswordReset:
		return d.SendPasswordResetEmailForUser(ctx, user, extra)
	case models.EventPasswordChanged:
		return d.SendPasswordChangedEmailForUser(ctx, user, extra)
	case models.EventEmailChanged:
		return d.SendEmailChangedEmailForUser(ctx, user, extra)
	default:
		return nil, fmt.Errorf("event code %s is not a user event", code)
	}
}

func (d *Dispatcher) sendUserEvent(ctx context.Context, user *models.User, code models.EventCode, extra map[string]interface{}) (*DispatchResult, error) {
	data := withDefault(extra, "user", user)
	messages, err := d.GetMessages(ctx, code, data)
	if err != nil {
		return nil, err
	}
	return d.DispatchUserMessages(ctx, user, messages)
}

// SendOrderPlacedEmailForUser sends the order confirmation and audits it.
func (d *Dispatcher) SendOrderPlacedEmailForUser(ctx context.Context, order *models.Order, extra map[string]interface{}, opts ...OrderOption) (*DispatchResult, error) {
	data := withDefault(extra, "order", order)
	if order.User != nil {
		data = withDefault(data, "user", order.User)
	}
	messages, err := d.GetMessages(ctx, models.EventOrderPlaced, data)
	if err != nil {
		return nil, err
	}
	return d.DispatchOrderMessages(ctx, order, messages, models.EventOrderPlaced, opts...)
}

// withDefault copies extra and sets key unless the caller already provided it.
func withDefault(extra map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(extra)+1)
	for k, v := range extra {
		out[k] = v
	}
	if _, ok := out[key]; !ok {
		out[key] = value
	}
	return out
}
