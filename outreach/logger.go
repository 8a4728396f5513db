package outreach

import (
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// Logger is the structured event log for the outreach engine. Every
// record carries the event name plus tenant/enrollment/execution ids so
// a single send can be traced across the pass. Logging never affects
// control flow; any panic inside it is swallowed.
type Logger struct {
	log *logrus.Logger
}

func NewLogger() *Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(os.Stdout)
	return &Logger{log: l}
}

// Fields is a shorthand for extra structured fields.
type Fields = logrus.Fields

func (l *Logger) entry(event string, tenantID uint, fields Fields) *logrus.Entry {
	base := logrus.Fields{
		"component": "outreach",
		"event":     event,
		"tenant_id": tenantID,
	}
	for k, v := range fields {
		base[k] = v
	}
	return l.log.WithFields(base)
}

// Event records an informational engine event.
func (l *Logger) Event(event string, tenantID uint, fields Fields) {
	defer func() { _ = recover() }()
	l.entry(event, tenantID, fields).Info(event)
}

// Error records a failure and mirrors it to sentry.
func (l *Logger) Error(event string, tenantID uint, err error, fields Fields) {
	defer func() { _ = recover() }()
	entry := l.entry(event, tenantID, fields)
	if err != nil {
		entry = entry.WithError(err)
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("event", event)
			for k, v := range fields {
				scope.SetExtra(k, v)
			}
			sentry.CaptureException(err)
		})
	}
	entry.Error(event)
}

// SendResultLog records the outcome of one provider send.
func (l *Logger) SendResultLog(tenantID, enrollmentID, executionID uint, channel Channel, result SendResult) {
	fields := Fields{
		"enrollment_id": enrollmentID,
		"execution_id":  executionID,
		"channel":       string(channel),
		"success":       result.Success,
	}
	if result.ProviderMessageID != "" {
		fields["provider_message_id"] = result.ProviderMessageID
	}
	if result.Err != nil {
		l.Error("send_failed", tenantID, result.Err, fields)
		return
	}
	l.Event("send_succeeded", tenantID, fields)
}

// SafetySkip records an enrollment skipped by a safety gate.
func (l *Logger) SafetySkip(tenantID, enrollmentID uint, reason string, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	fields["enrollment_id"] = enrollmentID
	fields["reason"] = reason
	l.Event("safety_skip", tenantID, fields)
}

// DeliveryUpdate records a delivery-status transition from the tracker.
func (l *Logger) DeliveryUpdate(tenantID, executionID uint, from, to string) {
	l.Event("delivery_update", tenantID, Fields{
		"execution_id": executionID,
		"from_status":  from,
		"to_status":    to,
	})
}
