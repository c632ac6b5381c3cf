package model

import "time"

type PurchaseMode string

const (
	PurchaseModeOneShot  PurchaseMode = "oneshot"
	PurchaseModeInterval PurchaseMode = "interval"
	PurchaseModeRenew    PurchaseMode = "renew"
)

// Purchase is the ledger row written for every completed payment.
type Purchase struct {
	ID                uint64       `gorm:"primaryKey;autoIncrement"`
	ServiceID         uint64       `gorm:"column:service_id;index;not null"`
	ChatID            uint64       `gorm:"column:chat_id;index;not null"`
	BuyerUID          string       `gorm:"column:buyer_uid;size:128;index;not null"`
	VendorUID         string       `gorm:"column:vendor_uid;size:128;index;not null"`
	Mode              PurchaseMode `gorm:"column:mode;size:16;not null"`
	OutgoingPaymentID string       `gorm:"column:outgoing_payment_id;size:512;not null"`
	AmountCents       int64        `gorm:"column:amount_cents;not null"`
	AssetCode         string       `gorm:"column:asset_code;size:16"`
	CreatedAt         time.Time    `gorm:"autoCreateTime"`
}

func (Purchase) TableName() string {
	return "purchases"
}
