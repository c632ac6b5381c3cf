package model

import "time"

type Role string

const (
	RoleBuyer       Role = "buyer"
	RoleVendor      Role = "vendor"
	RoleBuyerVendor Role = "buyer_vendor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleVendor, RoleBuyerVendor:
		return true
	}
	return false
}

// CanSell reports whether the role may publish services.
func (r Role) CanSell() bool {
	return r == RoleVendor || r == RoleBuyerVendor
}

type User struct {
	UID              string    `gorm:"column:uid;primaryKey;size:128" json:"uid"`
	DisplayName      string    `gorm:"column:display_name;size:120;not null" json:"displayName"`
	WalletAddressURL string    `gorm:"column:wallet_address_url;size:512;index" json:"walletAddressUrl"`
	Role             Role      `gorm:"column:role;size:32;not null;default:buyer" json:"role"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}
