package model

import "time"

// SessionState is derived from a chat at read time; it is never stored.
type SessionState string

const (
	SessionActive  SessionState = "active"
	SessionExpired SessionState = "expired"
	SessionLocked  SessionState = "locked"
)

// Chat is the buyer/vendor thread for a service, one per (service, buyer).
type Chat struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ServiceID uint64     `gorm:"column:service_id;not null;uniqueIndex:ux_chats_service_buyer" json:"serviceId"`
	BuyerUID  string     `gorm:"column:buyer_uid;size:128;not null;uniqueIndex:ux_chats_service_buyer;index" json:"buyerUid"`
	VendorUID string     `gorm:"column:vendor_uid;size:128;not null;index" json:"vendorUid"`
	SaleType  SaleType   `gorm:"column:sale_type;size:16" json:"saleType"`
	ExpiresAt *time.Time `gorm:"column:expires_at" json:"expiresAt"`
	Locked    bool       `gorm:"column:locked;not null;default:false" json:"locked"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Chat) TableName() string {
	return "chats"
}

// State evaluates the session at now. One-shot chats never expire.
func (c *Chat) State(now time.Time) SessionState {
	if c.Locked {
		return SessionLocked
	}
	if c.SaleType == SaleTypeInterval && c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return SessionExpired
	}
	return SessionActive
}

// IsParticipant reports whether uid is the buyer or the vendor.
func (c *Chat) IsParticipant(uid string) bool {
	return uid != "" && (uid == c.BuyerUID || uid == c.VendorUID)
}

// CanSend reports whether uid may post at now. Only the buyer is payment-gated.
func (c *Chat) CanSend(uid string, now time.Time) bool {
	if !c.IsParticipant(uid) {
		return false
	}
	if uid == c.VendorUID {
		return true
	}
	return c.State(now) == SessionActive
}
