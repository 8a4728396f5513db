package outreach

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"reachloop/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a fresh in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Tenant{},
		&models.TenantFeature{},
		&models.Contact{},
		&models.ContactCustomField{},
		&models.ConsentRecord{},
		&models.Sequence{},
		&models.SequenceStep{},
		&models.MessageTemplate{},
		&models.Enrollment{},
		&models.Execution{},
		&models.ChannelConfig{},
	))
	return db
}

// fakeProvider is a controllable stand-in for a channel transport.
type fakeProvider struct {
	mu         sync.Mutex
	channel    Channel
	configured bool
	failWith   error
	sent       []fakeSend
}

type fakeSend struct {
	Recipient string
	Subject   string
	Body      string
}

func newFakeProvider(channel Channel) *fakeProvider {
	return &fakeProvider{channel: channel, configured: true}
}

func (p *fakeProvider) Channel() Channel                { return p.channel }
func (p *fakeProvider) IsConfigured() bool              { return p.configured }
func (p *fakeProvider) ValidateRecipient(r string) bool { return r != "" }

func (p *fakeProvider) Send(_ context.Context, recipient, subject, body string) SendResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return SendResult{Err: p.failWith}
	}
	p.sent = append(p.sent, fakeSend{Recipient: recipient, Subject: subject, Body: body})
	return SendResult{Success: true, ProviderMessageID: uuid.NewString()}
}

func (p *fakeProvider) sendCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func (p *fakeProvider) lastSend() fakeSend {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[len(p.sent)-1]
}

// blockingProvider holds every send until released, simulating a slow
// transport while other passes overlap.
type blockingProvider struct {
	*fakeProvider
	startOnce sync.Once
	started   chan struct{}
	release   chan struct{}
}

func newBlockingProvider(channel Channel) *blockingProvider {
	return &blockingProvider{
		fakeProvider: newFakeProvider(channel),
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (p *blockingProvider) Send(ctx context.Context, recipient, subject, body string) SendResult {
	p.startOnce.Do(func() { close(p.started) })
	<-p.release
	return p.fakeProvider.Send(ctx, recipient, subject, body)
}

func testExecutor(db *gorm.DB, providers *ProviderSet) *Executor {
	events := NewLogger()
	e := NewExecutor(db, providers, NewTracker(db, events), events, nil)
	e.SendTimeout = time.Second
	return e
}

// fixture builds a tenant, contact, sequence and enrollment ready to run.
type fixture struct {
	Tenant     models.Tenant
	Contact    models.Contact
	Sequence   models.Sequence
	Enrollment models.Enrollment
}

type stepDef struct {
	Channel   Channel
	Condition string
	Delay     int
}

func buildFixture(t *testing.T, db *gorm.DB, steps []stepDef) *fixture {
	t.Helper()

	f := &fixture{}
	f.Tenant = models.Tenant{Name: "Acme", IsActive: true}
	require.NoError(t, db.Create(&f.Tenant).Error)
	require.NoError(t, db.Create(&models.TenantFeature{
		TenantID: f.Tenant.ID,
		Feature:  models.FeatureOutreach,
		Enabled:  true,
	}).Error)

	f.Contact = models.Contact{
		TenantID:  f.Tenant.ID,
		Email:     "ada@example.com",
		Phone:     "+14155550100",
		ChatID:    "88001122",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Company:   "Analytical Engines",
	}
	require.NoError(t, db.Create(&f.Contact).Error)

	f.Sequence = models.Sequence{TenantID: f.Tenant.ID, Name: "Welcome", IsActive: true}
	require.NoError(t, db.Create(&f.Sequence).Error)

	for i, s := range steps {
		tpl := models.MessageTemplate{
			TenantID: f.Tenant.ID,
			Name:     fmt.Sprintf("step-%d", i),
			Channel:  string(s.Channel),
			Subject:  "Hello {{first_name}}",
			Body:     "Hi {{first_name}}, this is step " + fmt.Sprint(i),
		}
		require.NoError(t, db.Create(&tpl).Error)

		condition := s.Condition
		if condition == "" {
			condition = models.ConditionAlways
		}
		require.NoError(t, db.Create(&models.SequenceStep{
			SequenceID: f.Sequence.ID,
			StepOrder:  i,
			Channel:    string(s.Channel),
			TemplateID: tpl.ID,
			DelayHours: s.Delay,
			Condition:  condition,
		}).Error)

		grantConsent(t, db, f.Tenant.ID, f.Contact.ID, s.Channel)
	}

	due := time.Now().Add(-time.Minute)
	f.Enrollment = models.Enrollment{
		SequenceID:      f.Sequence.ID,
		ContactID:       f.Contact.ID,
		TenantID:        f.Tenant.ID,
		Status:          models.EnrollmentActive,
		NextExecutionAt: &due,
	}
	require.NoError(t, db.Create(&f.Enrollment).Error)
	return f
}

func grantConsent(t *testing.T, db *gorm.DB, tenantID, contactID uint, channel Channel) {
	t.Helper()
	now := time.Now()
	var existing models.ConsentRecord
	err := db.Where("tenant_id = ? AND contact_id = ? AND channel = ?",
		tenantID, contactID, string(channel)).First(&existing).Error
	if err == nil {
		return
	}
	require.NoError(t, db.Create(&models.ConsentRecord{
		TenantID:  tenantID,
		ContactID: contactID,
		Channel:   string(channel),
		Granted:   true,
		GrantedAt: &now,
	}).Error)
}

func reloadEnrollment(t *testing.T, db *gorm.DB, id uint) models.Enrollment {
	t.Helper()
	var enrollment models.Enrollment
	require.NoError(t, db.First(&enrollment, id).Error)
	return enrollment
}

func executionsFor(t *testing.T, db *gorm.DB, enrollmentID uint) []models.Execution {
	t.Helper()
	var executions []models.Execution
	require.NoError(t, db.Where("enrollment_id = ?", enrollmentID).
		Order("id ASC").Find(&executions).Error)
	return executions
}

func makeDue(t *testing.T, db *gorm.DB, enrollmentID uint) {
	t.Helper()
	require.NoError(t, db.Model(&models.Enrollment{}).
		Where("id = ?", enrollmentID).
		Update("next_execution_at", time.Now().Add(-time.Minute)).Error)
}
