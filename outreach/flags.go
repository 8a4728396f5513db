package outreach

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"reachloop/models"

	"gorm.io/gorm"
)

// Environment-driven safety controls. Both are read fresh from the
// environment so operators can flip them without a restart.
const (
	EnvKillSwitch   = "OUTREACH_KILL_SWITCH"
	EnvPilotTenants = "OUTREACH_PILOT_TENANTS"
)

// IsKillSwitchActive reports whether all outreach sending is halted.
func IsKillSwitchActive() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(EnvKillSwitch)))
	return v == "true" || v == "1" || v == "on"
}

// PilotTenants parses the comma-separated pilot tenant id list. An empty
// result means the rollout is open to every tenant.
func PilotTenants() map[uint]bool {
	raw := strings.TrimSpace(os.Getenv(EnvPilotTenants))
	if raw == "" {
		return nil
	}
	out := make(map[uint]bool)
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			continue
		}
		out[uint(id)] = true
	}
	return out
}

// FlagSnapshot freezes the environment flags for one executor pass so a
// mid-pass flip cannot split the batch into two regimes.
type FlagSnapshot struct {
	KillSwitch bool
	Pilot      map[uint]bool
}

func NewFlagSnapshot() FlagSnapshot {
	return FlagSnapshot{
		KillSwitch: IsKillSwitchActive(),
		Pilot:      PilotTenants(),
	}
}

// TenantEnabled reports whether outreach may run for a tenant: the kill
// switch must be off, and the tenant must either carry an enabled
// "outreach" feature row or sit on the pilot allowlist. A missing
// feature row counts as not flagged.
func (s FlagSnapshot) TenantEnabled(db *gorm.DB, tenantID uint) bool {
	if s.KillSwitch {
		return false
	}
	if s.Pilot[tenantID] {
		return true
	}

	var feature models.TenantFeature
	err := db.Where("tenant_id = ? AND feature = ?", tenantID, models.FeatureOutreach).
		First(&feature).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			// On a read error fail closed rather than send
			return false
		}
		return false
	}
	return feature.Enabled
}

// IsTenantEnabled is the one-shot form used outside the executor.
func IsTenantEnabled(db *gorm.DB, tenantID uint) bool {
	return NewFlagSnapshot().TenantEnabled(db, tenantID)
}
