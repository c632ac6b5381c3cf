package model

import "time"

type SaleType string

const (
	SaleTypeOneShot  SaleType = "oneshot"
	SaleTypeInterval SaleType = "interval"
)

func (s SaleType) Valid() bool {
	return s == SaleTypeOneShot || s == SaleTypeInterval
}

// Service is something a vendor sells. BillingISO is set only for interval sales.
type Service struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	VendorUID   string    `gorm:"column:vendor_uid;size:128;index;not null" json:"vendorUid"`
	Title       string    `gorm:"size:120;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	PriceCents  int64     `gorm:"column:price_cents;not null" json:"priceCents"`
	AssetCode   *string   `gorm:"column:asset_code;size:16" json:"assetCode"`
	SaleType    SaleType  `gorm:"column:sale_type;size:16;not null;default:oneshot" json:"saleType"`
	BillingISO  *string   `gorm:"column:billing_iso;size:32" json:"billingIso"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Service) TableName() string {
	return "services"
}

// Billing returns the billing period or "" for one-shot services.
func (s *Service) Billing() string {
	if s.BillingISO == nil {
		return ""
	}
	return *s.BillingISO
}
