package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/shinyyama/paychat-backend/internal/openpayments"
	"github.com/shinyyama/paychat-backend/internal/repository"
	"gorm.io/gorm"
)

type ProfileInput struct {
	DisplayName string
	Wallet      string // absolute URL or a handle under INTERLEDGER_BASE
	Role        model.Role
}

type UserService interface {
	Get(ctx context.Context, uid string) (*model.User, error)
	Save(ctx context.Context, uid string, in ProfileInput) (*model.User, error)
	Asset(ctx context.Context, uid string) (*openpayments.WalletAddress, error)
}

type userService struct {
	repo      repository.UserRepository
	network   PaymentNetwork
	walletURL func(handle string) string
}

// NewUserService wires the profile service. walletURL resolves handles into
// wallet address URLs.
func NewUserService(repo repository.UserRepository, network PaymentNetwork, walletURL func(string) string) UserService {
	if walletURL == nil {
		walletURL = func(s string) string { return s }
	}
	return &userService{repo: repo, network: network, walletURL: walletURL}
}

func (s *userService) Get(ctx context.Context, uid string) (*model.User, error) {
	u, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *userService) Save(ctx context.Context, uid string, in ProfileInput) (*model.User, error) {
	if uid == "" {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" || len(name) > 120 {
		return nil, fmt.Errorf("%w: invalid display name", ErrValidation)
	}
	role := in.Role
	if role == "" {
		role = model.RoleBuyer
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, in.Role)
	}
	var wallet string
	if w := strings.TrimSpace(in.Wallet); w != "" {
		wallet = s.walletURL(w)
		if !strings.HasPrefix(wallet, "https://") && !strings.HasPrefix(wallet, "http://") {
			return nil, fmt.Errorf("%w: wallet address must resolve to a URL", ErrValidation)
		}
	}
	u := &model.User{UID: uid, DisplayName: name, WalletAddressURL: wallet, Role: role}
	if err := s.repo.Upsert(ctx, u); err != nil {
		return nil, err
	}
	return s.Get(ctx, uid)
}

// Asset looks up the currency of the caller's wallet.
func (s *userService) Asset(ctx context.Context, uid string) (*openpayments.WalletAddress, error) {
	u, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if u.WalletAddressURL == "" {
		return nil, fmt.Errorf("%w: no wallet address on profile", ErrValidation)
	}
	wa, err := s.network.GetWalletAddress(ctx, u.WalletAddressURL)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	return wa, nil
}
