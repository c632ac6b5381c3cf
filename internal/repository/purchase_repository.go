package repository

import (
	"context"

	"github.com/shinyyama/paychat-backend/internal/model"
	"gorm.io/gorm"
)

type PurchaseRepository interface {
	Create(ctx context.Context, p *model.Purchase) error
	FindByPaymentID(ctx context.Context, paymentID string) (*model.Purchase, error)
	ListByBuyer(ctx context.Context, buyerUID string) ([]model.Purchase, error)
	ListByVendor(ctx context.Context, vendorUID string) ([]model.Purchase, error)
	SumByVendor(ctx context.Context, vendorUID string) (int64, error)
	SetDB(db *gorm.DB)
}

type purchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) Create(ctx context.Context, p *model.Purchase) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *purchaseRepository) FindByPaymentID(ctx context.Context, paymentID string) (*model.Purchase, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var p model.Purchase
	if err := r.db.WithContext(ctx).
		Where("outgoing_payment_id = ?", paymentID).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *purchaseRepository) ListByBuyer(ctx context.Context, buyerUID string) ([]model.Purchase, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Purchase
	if err := r.db.WithContext(ctx).
		Where("buyer_uid = ?", buyerUID).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *purchaseRepository) ListByVendor(ctx context.Context, vendorUID string) ([]model.Purchase, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Purchase
	if err := r.db.WithContext(ctx).
		Where("vendor_uid = ?", vendorUID).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// SumByVendor totals amount_cents across every sale of the vendor.
func (r *purchaseRepository) SumByVendor(ctx context.Context, vendorUID string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&model.Purchase{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("vendor_uid = ?", vendorUID).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *purchaseRepository) SetDB(db *gorm.DB) {
	r.db = db
}
