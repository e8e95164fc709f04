package communication

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"comm-dispatch/internal/common/logger"
	"comm-dispatch/internal/communication/templates"
	"comm-dispatch/internal/models"
	"comm-dispatch/internal/partner"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg *models.EmailMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

type fakeRenderer struct {
	messages map[models.EventCode]*models.Messages
	data     []map[string]interface{}
	err      error
}

func (f *fakeRenderer) Render(_ context.Context, code models.EventCode, data map[string]interface{}) (*models.Messages, error) {
	f.data = append(f.data, data)
	if f.err != nil {
		return nil, f.err
	}
	if m, ok := f.messages[code]; ok {
		cp := *m
		return &cp, nil
	}
	return &models.Messages{}, nil
}

type fakeEventTypes struct {
	types map[models.EventCode]*models.CommunicationEventType
	err   error
}

func (f *fakeEventTypes) GetByCode(_ context.Context, code models.EventCode) (*models.CommunicationEventType, error) {
	if f.err != nil {
		return nil, f.err
	}
	if t, ok := f.types[code]; ok {
		return t, nil
	}
	return nil, models.ErrNotFound
}

type fakeAudit struct {
	mu     sync.Mutex
	events []*models.CommunicationEvent
	emails []*models.Email
	err    error
}

func (f *fakeAudit) CreateCommunicationEvent(_ context.Context, e *models.CommunicationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	e.ID = int64(len(f.events) + 1)
	f.events = append(f.events, e)
	return nil
}

func (f *fakeAudit) CreateEmail(_ context.Context, e *models.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	e.ID = int64(len(f.emails) + 1)
	f.emails = append(f.emails, e)
	return nil
}

type fakeNotifications struct {
	created []*models.Notification
}

func (f *fakeNotifications) Create(_ context.Context, n *models.Notification) error {
	n.ID = int64(len(f.created) + 1)
	f.created = append(f.created, n)
	return nil
}

type fakeAlerts struct {
	alerts    []*models.ProductAlert
	requested []int64
	closed    []int64
}

func (f *fakeAlerts) ActiveForProducts(_ context.Context, ids []int64) ([]*models.ProductAlert, error) {
	f.requested = ids
	var out []*models.ProductAlert
	for _, a := range f.alerts {
		if !a.IsActive() {
			continue
		}
		for _, id := range ids {
			if a.ProductID == id {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeAlerts) Close(_ context.Context, a *models.ProductAlert) error {
	f.closed = append(f.closed, a.ID)
	return nil
}

type fakeStock struct {
	records []models.StockRecord
}

func (f *fakeStock) ForProduct(context.Context, int64) ([]models.StockRecord, error) {
	return f.records, nil
}

// availabilityStrategy marks the product unavailable for listed user ids; 0 is
// the guest.
type availabilityStrategy struct {
	unavailable map[int64]bool
	userID      int64
}

func (s availabilityStrategy) FetchForProduct(context.Context, *models.Product) (*partner.PurchaseInfo, error) {
	return &partner.PurchaseInfo{
		Availability: partner.Availability{IsAvailableToBuy: !s.unavailable[s.userID]},
	}, nil
}

type fakeSelector struct {
	unavailable map[int64]bool
}

func (f fakeSelector) Strategy(user *models.User) partner.Strategy {
	var id int64
	if user != nil {
		id = user.ID
	}
	return availabilityStrategy{unavailable: f.unavailable, userID: id}
}

type fakePublisher struct {
	published []*models.CommunicationEvent
	err       error
}

func (f *fakePublisher) PublishCommunicationEvent(_ context.Context, e *models.CommunicationEvent) error {
	f.published = append(f.published, e)
	return f.err
}

type fakeArchive struct {
	indexed []*models.Email
}

func (f *fakeArchive) IndexEmail(_ context.Context, e *models.Email) error {
	f.indexed = append(f.indexed, e)
	return nil
}

type testEnv struct {
	dispatcher    *Dispatcher
	mailer        *MockMailer
	renderer      *fakeRenderer
	eventTypes    *fakeEventTypes
	audit         *fakeAudit
	notifications *fakeNotifications
	alerts        *fakeAlerts
	stock         *fakeStock
	selector      *fakeSelector
	publisher     *fakePublisher
	archive       *fakeArchive
	templateFs    afero.Fs
	logs          *observer.ObservedLogs
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	env := &testEnv{
		mailer:        &MockMailer{},
		renderer:      &fakeRenderer{messages: map[models.EventCode]*models.Messages{}},
		eventTypes:    &fakeEventTypes{types: map[models.EventCode]*models.CommunicationEventType{}},
		audit:         &fakeAudit{},
		notifications: &fakeNotifications{},
		alerts:        &fakeAlerts{},
		stock:         &fakeStock{},
		selector:      &fakeSelector{unavailable: map[int64]bool{}},
		publisher:     &fakePublisher{},
		archive:       &fakeArchive{},
		templateFs:    afero.NewMemMapFs(),
		logs:          logs,
	}

	env.dispatcher = New(Dependencies{
		Logger:        logger.NewZapAdapter(zap.New(core)),
		Renderer:      env.renderer,
		Templates:     templates.NewLoader(env.templateFs),
		Mailer:        env.mailer,
		EventTypes:    env.eventTypes,
		Audit:         env.audit,
		Notifications: env.notifications,
		Alerts:        env.alerts,
		Stock:         env.stock,
		Selector:      env.selector,
		Publisher:     env.publisher,
		Archive:       env.archive,
	}, &Config{
		FromEmail:      "shop@example.com",
		SaveSentEmails: true,
		Site:           Site{Name: "Example Shop", Domain: "shop.example.com"},
	})
	env.dispatcher.now = func() time.Time { return fixedNow }
	return env
}

func (e *testEnv) writeTemplate(t *testing.T, name, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(e.templateFs, name, []byte(body), 0o644))
}

func (e *testEnv) expectSend(to string) {
	e.mailer.On("Send", mock.Anything, mock.MatchedBy(func(m *models.EmailMessage) bool {
		return len(m.To) == 1 && m.To[0] == to
	})).Return("msg-"+to, nil).Once()
}

func emailMessages() *models.Messages {
	return &models.Messages{Subject: "Hello", Body: "Body text", HTML: "<p>Body</p>"}
}

func intPtr(v int) *int { return &v }
