package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shinyyama/paychat-backend/internal/interval"
	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/shinyyama/paychat-backend/internal/repository"
	"gorm.io/gorm"
)

// ServiceInput is the editable part of a service. Nil fields keep their
// current value on update.
type ServiceInput struct {
	Title       *string
	Description *string
	PriceCents  *int64
	SaleType    *model.SaleType
	BillingISO  *string
}

type CatalogService interface {
	Create(ctx context.Context, vendorUID string, in ServiceInput) (*model.Service, error)
	Get(ctx context.Context, id uint64) (*model.Service, error)
	List(ctx context.Context, limit, offset int, vendorUID string) ([]model.Service, int64, error)
	Update(ctx context.Context, id uint64, vendorUID string, in ServiceInput) (*model.Service, error)
	Delete(ctx context.Context, id uint64, vendorUID string) error
}

type catalogService struct {
	repo    repository.ServiceRepository
	users   repository.UserRepository
	network PaymentNetwork
}

func NewCatalogService(repo repository.ServiceRepository, users repository.UserRepository, network PaymentNetwork) CatalogService {
	return &catalogService{repo: repo, users: users, network: network}
}

func (s *catalogService) Create(ctx context.Context, vendorUID string, in ServiceInput) (*model.Service, error) {
	vendor, err := s.vendor(ctx, vendorUID)
	if err != nil {
		return nil, err
	}
	svc := &model.Service{VendorUID: vendor.UID, SaleType: model.SaleTypeOneShot}
	if in.Title == nil || in.PriceCents == nil {
		return nil, fmt.Errorf("%w: title and price are required", ErrValidation)
	}
	if err := apply(svc, in); err != nil {
		return nil, err
	}
	if err := s.detectAsset(ctx, vendor, svc); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *catalogService) Get(ctx context.Context, id uint64) (*model.Service, error) {
	svc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return svc, nil
}

func (s *catalogService) List(ctx context.Context, limit, offset int, vendorUID string) ([]model.Service, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset, strings.TrimSpace(vendorUID))
}

func (s *catalogService) Update(ctx context.Context, id uint64, vendorUID string, in ServiceInput) (*model.Service, error) {
	svc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if svc.VendorUID != vendorUID {
		return nil, ErrForbidden
	}
	vendor, err := s.vendor(ctx, vendorUID)
	if err != nil {
		return nil, err
	}
	if err := apply(svc, in); err != nil {
		return nil, err
	}
	if err := s.detectAsset(ctx, vendor, svc); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

// Delete removes the service with its chats and their messages.
func (s *catalogService) Delete(ctx context.Context, id uint64, vendorUID string) error {
	svc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if svc.VendorUID != vendorUID {
		return ErrForbidden
	}
	if err := s.repo.DeleteCascade(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *catalogService) vendor(ctx context.Context, uid string) (*model.User, error) {
	u, err := s.users.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if !u.Role.CanSell() {
		return nil, ErrForbidden
	}
	return u, nil
}

// detectAsset prices the service in the currency of the vendor's wallet.
func (s *catalogService) detectAsset(ctx context.Context, vendor *model.User, svc *model.Service) error {
	if vendor.WalletAddressURL == "" {
		return fmt.Errorf("%w: set a wallet address before publishing services", ErrValidation)
	}
	if s.network == nil {
		return nil
	}
	wa, err := s.network.GetWalletAddress(ctx, vendor.WalletAddressURL)
	if err != nil {
		return fmt.Errorf("vendor wallet: %w", err)
	}
	if wa.AssetCode != "" {
		code := wa.AssetCode
		svc.AssetCode = &code
	}
	return nil
}

func apply(svc *model.Service, in ServiceInput) error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" || len(title) > 120 {
			return fmt.Errorf("%w: invalid title", ErrValidation)
		}
		svc.Title = title
	}
	if in.Description != nil {
		svc.Description = strings.TrimSpace(*in.Description)
	}
	if in.PriceCents != nil {
		if *in.PriceCents <= 0 {
			return fmt.Errorf("%w: price must be positive", ErrValidation)
		}
		svc.PriceCents = *in.PriceCents
	}
	if in.SaleType != nil {
		if !in.SaleType.Valid() {
			return fmt.Errorf("%w: unknown sale type %q", ErrValidation, *in.SaleType)
		}
		svc.SaleType = *in.SaleType
	}

	if svc.SaleType == model.SaleTypeOneShot {
		svc.BillingISO = nil
		return nil
	}
	billing := svc.Billing()
	if in.BillingISO != nil {
		billing = strings.ToUpper(strings.TrimSpace(*in.BillingISO))
	}
	if billing == "" {
		billing = interval.DefaultBilling
	}
	if !interval.Valid(billing) {
		return fmt.Errorf("%w: unsupported billing period %q", ErrValidation, billing)
	}
	svc.BillingISO = &billing
	return nil
}
