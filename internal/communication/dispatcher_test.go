package communication

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"comm-dispatch/internal/models"
)

func registeredUser() *models.User {
	return &models.User{ID: 42, Email: "jane@example.com", FirstName: "Jane"}
}

func TestDispatchUserMessages_EmailGate(t *testing.T) {
	tests := []struct {
		name     string
		messages *models.Messages
		wantSend bool
	}{
		{name: "subject and body", messages: &models.Messages{Subject: "s", Body: "b"}, wantSend: true},
		{name: "subject and html", messages: &models.Messages{Subject: "s", HTML: "<p>h</p>"}, wantSend: true},
		{name: "no body or html", messages: &models.Messages{Subject: "s"}, wantSend: false},
		{name: "no subject", messages: &models.Messages{Body: "b", HTML: "h"}, wantSend: false},
		{name: "empty bundle", messages: &models.Messages{}, wantSend: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.wantSend {
				env.expectSend("jane@example.com")
			}

			result, err := env.dispatcher.DispatchUserMessages(context.Background(), registeredUser(), tt.messages)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSend, result.Dispatched())
			env.mailer.AssertExpectations(t)
			if !tt.wantSend {
				env.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestDispatchUserMessages_SMSNotImplemented(t *testing.T) {
	env := newTestEnv(t)
	env.expectSend("jane@example.com")

	msgs := emailMessages()
	msgs.SMS = "Your order shipped"

	result, err := env.dispatcher.DispatchUserMessages(context.Background(), registeredUser(), msgs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSMSNotImplemented))
	// the email went out before the SMS attempt
	require.NotNil(t, result.Email)
	assert.False(t, result.SMS)
	env.mailer.AssertExpectations(t)
}

func TestSendTextMessage_AlwaysFails(t *testing.T) {
	env := newTestEnv(t)
	err := env.dispatcher.SendTextMessage(context.Background(), registeredUser(), "hi")
	assert.ErrorIs(t, err, ErrSMSNotImplemented)
}

func TestSendUserEmailMessages_NoAddress(t *testing.T) {
	env := newTestEnv(t)

	sent, err := env.dispatcher.SendUserEmailMessages(context.Background(), &models.User{ID: 7}, emailMessages())
	require.NoError(t, err)
	assert.Nil(t, sent)
	env.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	warnings := env.logs.FilterMessage("Unable to send email messages as user has no email address").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, int64(7), warnings[0].ContextMap()["userId"])
}

func TestSendUserEmailMessages_SavesCopy(t *testing.T) {
	env := newTestEnv(t)
	env.expectSend("jane@example.com")

	sent, err := env.dispatcher.SendUserEmailMessages(context.Background(), registeredUser(), emailMessages())
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, "msg-jane@example.com", sent.MessageID)
	assert.Equal(t, "shop@example.com", sent.From)
	assert.True(t, sent.HasAlternative())

	require.Len(t, env.audit.emails, 1)
	stored := env.audit.emails[0]
	assert.Equal(t, int64(42), stored.UserID)
	assert.Equal(t, "Hello", stored.Subject)
	assert.Equal(t, "Body text", stored.BodyText)
	assert.Equal(t, "<p>Body</p>", stored.BodyHTML)
	assert.Equal(t, fixedNow, stored.DateSent)

	require.Len(t, env.archive.indexed, 1)
	assert.Same(t, stored, env.archive.indexed[0])
}

func TestSendUserEmailMessages_SaveDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.cfg.SaveSentEmails = false
	env.expectSend("jane@example.com")

	_, err := env.dispatcher.SendUserEmailMessages(context.Background(), registeredUser(), emailMessages())
	require.NoError(t, err)
	assert.Empty(t, env.audit.emails)
	assert.Empty(t, env.archive.indexed)
}

func TestSendUserEmailMessages_UnsavedUserNotStored(t *testing.T) {
	env := newTestEnv(t)
	env.expectSend("new@example.com")

	_, err := env.dispatcher.SendUserEmailMessages(context.Background(), &models.User{Email: "new@example.com"}, emailMessages())
	require.NoError(t, err)
	assert.Empty(t, env.audit.emails)
}

func TestSendEmailMessages_TransportError(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.On("Send", mock.Anything, mock.Anything).Return("", errors.New("throttled"))

	_, err := env.dispatcher.SendEmailMessages(context.Background(), "jane@example.com", emailMessages())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestSendEmailMessages_PlainText(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.On("Send", mock.Anything, mock.MatchedBy(func(m *models.EmailMessage) bool {
		return !m.HasAlternative() && m.Body == "plain"
	})).Return("id-1", nil).Once()

	sent, err := env.dispatcher.SendEmailMessages(context.Background(), "a@example.com", &models.Messages{Subject: "s", Body: "plain"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com"}, sent.To)
	env.mailer.AssertExpectations(t)
}

func orderPlacedType() *models.CommunicationEventType {
	return &models.CommunicationEventType{ID: 9, Code: models.EventOrderPlaced, Category: models.CategoryOrderRelated}
}

func TestDispatchOrderMessages_GuestPath(t *testing.T) {
	env := newTestEnv(t)
	env.eventTypes.types[models.EventOrderPlaced] = orderPlacedType()
	env.expectSend("guest@example.com")

	order := &models.Order{ID: 1, Number: "100001", GuestEmail: "guest@example.com"}
	result, err := env.dispatcher.DispatchOrderMessages(context.Background(), order, emailMessages(), models.EventOrderPlaced)
	require.NoError(t, err)
	assert.True(t, result.Dispatched())

	// guest mail is never copied to the user email table
	assert.Empty(t, env.audit.emails)
	require.Len(t, env.audit.events, 1)
	event := env.audit.events[0]
	assert.Equal(t, int64(1), event.OrderID)
	assert.Equal(t, int64(9), event.EventTypeID)
	assert.Equal(t, fixedNow, event.DateCreated)
	require.Len(t, env.publisher.published, 1)
	env.mailer.AssertExpectations(t)
}

func TestDispatchOrderMessages_EmailAddressOverride(t *testing.T) {
	env := newTestEnv(t)
	env.expectSend("other@example.com")

	order := &models.Order{ID: 1, Number: "100001", GuestEmail: "guest@example.com"}
	_, err := env.dispatcher.DispatchOrderMessages(context.Background(), order, emailMessages(), models.EventOrderPlaced,
		WithEmailAddress("other@example.com"))
	require.NoError(t, err)
	env.mailer.AssertExpectations(t)
}

func TestDispatchOrderMessages_RegisteredPath(t *testing.T) {
	env := newTestEnv(t)
	env.eventTypes.types[models.EventOrderPlaced] = orderPlacedType()
	env.expectSend("jane@example.com")

	order := &models.Order{ID: 2, Number: "100002", User: registeredUser(), GuestEmail: "ignored@example.com"}
	_, err := env.dispatcher.DispatchOrderMessages(context.Background(), order, emailMessages(), models.EventOrderPlaced)
	require.NoError(t, err)

	assert.Len(t, env.audit.emails, 1)
	assert.Len(t, env.audit.events, 1)
	env.mailer.AssertExpectations(t)
}

func TestDispatchOrderMessages_AuditRules(t *testing.T) {
	tests := []struct {
		name       string
		typeExists bool
		messages   *models.Messages
		guestEmail string
		wantEvents int
	}{
		{name: "sent and type exists", typeExists: true, messages: emailMessages(), guestEmail: "g@example.com", wantEvents: 1},
		{name: "type missing", typeExists: false, messages: emailMessages(), guestEmail: "g@example.com", wantEvents: 0},
		{name: "nothing to send", typeExists: true, messages: &models.Messages{Subject: "only"}, guestEmail: "g@example.com", wantEvents: 0},
		{name: "guest without email", typeExists: true, messages: emailMessages(), guestEmail: "", wantEvents: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.typeExists {
				env.eventTypes.types[models.EventOrderPlaced] = orderPlacedType()
			}
			env.mailer.On("Send", mock.Anything, mock.Anything).Return("id", nil).Maybe()

			order := &models.Order{ID: 3, Number: "100003", GuestEmail: tt.guestEmail}
			_, err := env.dispatcher.DispatchOrderMessages(context.Background(), order, tt.messages, models.EventOrderPlaced)
			require.NoError(t, err)
			assert.Len(t, env.audit.events, tt.wantEvents)
		})
	}
}

func TestDispatchOrderMessages_RegisteredUserWithoutEmailNotAudited(t *testing.T) {
	env := newTestEnv(t)
	env.eventTypes.types[models.EventOrderPlaced] = orderPlacedType()

	order := &models.Order{ID: 4, Number: "100004", User: &models.User{ID: 5}}
	result, err := env.dispatcher.DispatchOrderMessages(context.Background(), order, emailMessages(), models.EventOrderPlaced)
	require.NoError(t, err)
	assert.False(t, result.Dispatched())
	assert.Empty(t, env.audit.events)
}

func TestDispatchOrderMessages_EventTypeLookupError(t *testing.T) {
	env := newTestEnv(t)
	env.eventTypes.err = errors.New("connection reset")
	env.expectSend("g@example.com")

	order := &models.Order{ID: 5, Number: "100005", GuestEmail: "g@example.com"}
	_, err := env.dispatcher.DispatchOrderMessages(context.Background(), order, emailMessages(), models.EventOrderPlaced)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestDispatchOrderMessages_PublishFailureNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.eventTypes.types[models.EventOrderPlaced] = orderPlacedType()
	env.publisher.err = errors.New("sns down")
	env.expectSend("g@example.com")

	order := &models.Order{ID: 6, Number: "100006", GuestEmail: "g@example.com"}
	_, err := env.dispatcher.DispatchOrderMessages(context.Background(), order, emailMessages(), models.EventOrderPlaced)
	require.NoError(t, err)
	assert.Len(t, env.audit.events, 1)
	assert.Equal(t, 1, env.logs.FilterMessage("Failed to publish communication event").Len())
}

func TestDispatchAnonymousMessages_AppliesEmailGate(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.dispatcher.DispatchAnonymousMessages(context.Background(), "g@example.com", &models.Messages{Subject: "s"})
	require.NoError(t, err)
	assert.False(t, result.Dispatched())
	env.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestNotifyUsers(t *testing.T) {
	env := newTestEnv(t)
	users := []*models.User{{ID: 1}, {ID: 2}}

	err := env.dispatcher.NotifyUsers(context.Background(), users, "Sale", WithBody("Everything must go"), WithSender(99))
	require.NoError(t, err)
	require.Len(t, env.notifications.created, 2)

	n := env.notifications.created[1]
	assert.Equal(t, int64(2), n.RecipientID)
	assert.Equal(t, "Sale", n.Subject)
	assert.Equal(t, "Everything must go", n.Body)
	assert.Equal(t, models.NotificationInbox, n.Location)
	require.NotNil(t, n.SenderID)
	assert.Equal(t, int64(99), *n.SenderID)
}

func TestGetMessages_MergesBaseContext(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.dispatcher.GetMessages(context.Background(), models.EventRegistration, map[string]interface{}{"reset_url": "/r"})
	require.NoError(t, err)
	require.Len(t, env.renderer.data, 1)
	data := env.renderer.data[0]
	assert.Equal(t, Site{Name: "Example Shop", Domain: "shop.example.com"}, data["site"])
	assert.Equal(t, "/r", data["reset_url"])
}

func TestSendUserEventEmail(t *testing.T) {
	env := newTestEnv(t)
	env.renderer.messages[models.EventPasswordReset] = emailMessages()
	env.expectSend("jane@example.com")

	user := registeredUser()
	result, err := env.dispatcher.SendUserEventEmail(context.Background(), user, models.EventPasswordReset, nil)
	require.NoError(t, err)
	assert.True(t, result.Dispatched())
	assert.Same(t, user, env.renderer.data[0]["user"])

	_, err = env.dispatcher.SendUserEventEmail(context.Background(), user, models.EventOrderPlaced, nil)
	require.Error(t, err)
	assert.True(t, IsUserEventCode(models.EventEmailChanged))
	assert.False(t, IsUserEventCode(models.EventProductAlert))
}

func TestSendOrderPlacedEmailForUser(t *testing.T) {
	env := newTestEnv(t)
	env.renderer.messages[models.EventOrderPlaced] = emailMessages()
	env.eventTypes.types[models.EventOrderPlaced] = orderPlacedType()
	env.expectSend("guest@example.com")

	order := &models.Order{ID: 7, Number: "100007", GuestEmail: "guest@example.com"}
	_, err := env.dispatcher.SendOrderPlacedEmailForUser(context.Background(), order, nil)
	require.NoError(t, err)
	assert.Same(t, order, env.renderer.data[0]["order"])
	assert.Len(t, env.audit.events, 1)
}

func TestGetMessages_RenderError(t *testing.T) {
	env := newTestEnv(t)
	env.renderer.err = errors.New("bad template")

	_, err := env.dispatcher.SendRegistrationEmailForUser(context.Background(), registeredUser(), nil)
	require.Error(t, err)
	env.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestDispatchDirectMessages(t *testing.T) {
	env := newTestEnv(t)
	env.expectSend("someone@example.com")

	sent, err := env.dispatcher.DispatchDirectMessages(context.Background(), "someone@example.com", emailMessages())
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Empty(t, env.audit.emails)

	sent, err = env.dispatcher.DispatchDirectMessages(context.Background(), "someone@example.com", &models.Messages{Body: "no subject"})
	require.NoError(t, err)
	assert.Nil(t, sent)
	env.mailer.AssertExpectations(t)
}
