package service

import (
	"context"

	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/shinyyama/paychat-backend/internal/repository"
)

// Sales is a vendor's ledger with its running total in minor units.
type Sales struct {
	Items      []model.Purchase
	TotalCents int64
}

type LedgerService interface {
	Purchases(ctx context.Context, buyerUID string) ([]model.Purchase, error)
	Sales(ctx context.Context, vendorUID string) (*Sales, error)
}

type ledgerService struct {
	repo repository.PurchaseRepository
}

func NewLedgerService(repo repository.PurchaseRepository) LedgerService {
	return &ledgerService{repo: repo}
}

func (s *ledgerService) Purchases(ctx context.Context, buyerUID string) ([]model.Purchase, error) {
	if buyerUID == "" {
		return []model.Purchase{}, nil
	}
	return s.repo.ListByBuyer(ctx, buyerUID)
}

func (s *ledgerService) Sales(ctx context.Context, vendorUID string) (*Sales, error) {
	if vendorUID == "" {
		return &Sales{Items: []model.Purchase{}}, nil
	}
	items, err := s.repo.ListByVendor(ctx, vendorUID)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.SumByVendor(ctx, vendorUID)
	if err != nil {
		return nil, err
	}
	return &Sales{Items: items, TotalCents: total}, nil
}
