package models

import "gorm.io/gorm"

// Tenant is the top-level account; every outreach entity hangs off one.
type Tenant struct {
	gorm.Model
	Name     string `gorm:"not null" json:"name"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	Features []TenantFeature `gorm:"foreignKey:TenantID" json:"features,omitempty"`
}

// TenantFeature is a per-tenant feature toggle row. The outreach engine
// consults the "outreach" feature before sending anything for a tenant.
type TenantFeature struct {
	gorm.Model
	TenantID uint   `gorm:"not null;index:idx_tenant_feature,unique" json:"tenant_id"`
	Feature  string `gorm:"not null;index:idx_tenant_feature,unique" json:"feature"`
	Enabled  bool   `gorm:"default:false" json:"enabled"`
}

const FeatureOutreach = "outreach"
