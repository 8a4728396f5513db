package outreach

import (
	"fmt"

	"reachloop/models"

	"gorm.io/gorm"
)

// ChannelMetrics aggregates execution outcomes for one channel.
type ChannelMetrics struct {
	Sent      int64 `json:"sent"`
	Delivered int64 `json:"delivered"`
	Opened    int64 `json:"opened"`
	Replied   int64 `json:"replied"`
	Failed    int64 `json:"failed"`
	Bounced   int64 `json:"bounced"`
	Skipped   int64 `json:"skipped"`
}

// TenantMetrics is the outreach dashboard payload for one tenant.
type TenantMetrics struct {
	TotalEnrollments  int64                      `json:"total_enrollments"`
	ActiveEnrollments int64                      `json:"active_enrollments"`
	Totals            ChannelMetrics             `json:"totals"`
	ByChannel         map[string]*ChannelMetrics `json:"by_channel"`
	DeliveryRate      float64                    `json:"delivery_rate"`
	OpenRate          float64                    `json:"open_rate"`
	ReplyRate         float64                    `json:"reply_rate"`
}

// Metrics computes delivery metrics from execution rows. Later statuses
// imply earlier ones, so a replied execution counts as sent, delivered
// and opened too.
func Metrics(db *gorm.DB, tenantID uint) (*TenantMetrics, error) {
	m := &TenantMetrics{ByChannel: make(map[string]*ChannelMetrics)}

	if err := db.Model(&models.Enrollment{}).
		Where("tenant_id = ?", tenantID).Count(&m.TotalEnrollments).Error; err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	db.Model(&models.Enrollment{}).
		Where("tenant_id = ? AND status = ?", tenantID, models.EnrollmentActive).
		Count(&m.ActiveEnrollments)

	type row struct {
		Channel string
		Status  string
		N       int64
	}
	var rows []row
	err := db.Model(&models.Execution{}).
		Select("channel, status, count(*) as n").
		Where("tenant_id = ?", tenantID).
		Group("channel, status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate executions: %w", err)
	}

	for _, r := range rows {
		cm, ok := m.ByChannel[r.Channel]
		if !ok {
			cm = &ChannelMetrics{}
			m.ByChannel[r.Channel] = cm
		}
		applyStatus(cm, r.Status, r.N)
		applyStatus(&m.Totals, r.Status, r.N)
	}

	if m.Totals.Sent > 0 {
		m.DeliveryRate = float64(m.Totals.Delivered) / float64(m.Totals.Sent)
		m.OpenRate = float64(m.Totals.Opened) / float64(m.Totals.Sent)
		m.ReplyRate = float64(m.Totals.Replied) / float64(m.Totals.Sent)
	}
	return m, nil
}

func applyStatus(cm *ChannelMetrics, status string, n int64) {
	switch status {
	case models.ExecutionSent:
		cm.Sent += n
	case models.ExecutionDelivered:
		cm.Sent += n
		cm.Delivered += n
	case models.ExecutionOpened:
		cm.Sent += n
		cm.Delivered += n
		cm.Opened += n
	case models.ExecutionReplied:
		cm.Sent += n
		cm.Delivered += n
		cm.Opened += n
		cm.Replied += n
	case models.ExecutionFailed:
		cm.Failed += n
	case models.ExecutionBounced:
		cm.Bounced += n
	case models.ExecutionSkipped:
		cm.Skipped += n
	}
}
