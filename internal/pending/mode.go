package pending

import "github.com/shinyyama/paychat-backend/internal/model"

// Mode says what a pending purchase does once the buyer approves it.
// It is closed: the only implementations are OneShot, Interval and Renewal.
type Mode interface {
	Kind() model.PurchaseMode
	mode()
}

// OneShot buys a non-expiring chat.
type OneShot struct{}

// Interval buys a chat that stays open for Duration (ISO 8601).
type Interval struct {
	Duration string
}

// Renewal extends an existing interval chat by Duration.
type Renewal struct {
	ChatID   uint64
	Duration string
}

func (OneShot) Kind() model.PurchaseMode  { return model.PurchaseModeOneShot }
func (Interval) Kind() model.PurchaseMode { return model.PurchaseModeInterval }
func (Renewal) Kind() model.PurchaseMode  { return model.PurchaseModeRenew }

func (OneShot) mode()  {}
func (Interval) mode() {}
func (Renewal) mode()  {}

// DurationOf returns the billing period of interval and renewal modes.
func DurationOf(m Mode) string {
	switch v := m.(type) {
	case Interval:
		return v.Duration
	case Renewal:
		return v.Duration
	}
	return ""
}
