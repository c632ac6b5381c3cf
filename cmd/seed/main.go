package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shinyyama/paychat-backend/internal/config"
	"github.com/shinyyama/paychat-backend/internal/db"
	"github.com/shinyyama/paychat-backend/internal/logger"
	"github.com/shinyyama/paychat-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type seedService struct {
	Title       string
	Description string
	PriceCents  int64
	SaleType    model.SaleType
	BillingISO  string
}

func main() {
	log := logger.New(logger.Config{Level: "info", Format: "console", Service: "paychat-seed"})
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console", Service: "paychat-seed"})

	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	canSeed, err := shouldSeed(ctx, gdb)
	if err != nil {
		return err
	}
	if !canSeed {
		log.Info().Msg("services already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	vendor := model.User{
		UID:              envOr("SEED_VENDOR_UID", "demo-vendor"),
		DisplayName:      "Demo Vendor",
		WalletAddressURL: cfg.WalletURL(envOr("SEED_VENDOR_WALLET", "demo-vendor")),
		Role:             model.RoleVendor,
	}
	buyer := model.User{
		UID:              envOr("SEED_BUYER_UID", "demo-buyer"),
		DisplayName:      "Demo Buyer",
		WalletAddressURL: cfg.WalletURL(envOr("SEED_BUYER_WALLET", "demo-buyer")),
		Role:             model.RoleBuyer,
	}
	services := buildSeedServices()

	err = gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range []*model.User{&vendor, &buyer} {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(u).Error; err != nil {
				return fmt.Errorf("upsert user %q: %w", u.UID, err)
			}
		}
		for _, s := range services {
			svc := model.Service{
				VendorUID:   vendor.UID,
				Title:       strings.TrimSpace(s.Title),
				Description: strings.TrimSpace(s.Description),
				PriceCents:  s.PriceCents,
				SaleType:    s.SaleType,
			}
			if s.BillingISO != "" {
				billing := s.BillingISO
				svc.BillingISO = &billing
			}
			if err := tx.Create(&svc).Error; err != nil {
				return fmt.Errorf("insert service %q: %w", svc.Title, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("services", len(services)).Str("vendor", vendor.UID).Str("buyer", buyer.UID).Msg("seeded demo data")
	return nil
}

func buildSeedServices() []seedService {
	return []seedService{
		{Title: "Code review", Description: "One pass over a pull request of up to 500 lines.", PriceCents: 1500, SaleType: model.SaleTypeOneShot},
		{Title: "Logo sketch", Description: "Three rough logo directions.", PriceCents: 4000, SaleType: model.SaleTypeOneShot},
		{Title: "Office hours", Description: "Ask anything while the session runs.", PriceCents: 1000, SaleType: model.SaleTypeInterval, BillingISO: "PT1H"},
		{Title: "Quick question", Description: "A short chat window for a single question.", PriceCents: 200, SaleType: model.SaleTypeInterval, BillingISO: "PT5M"},
		{Title: "Daily mentoring", Description: "Unlimited chat for a day.", PriceCents: 5000, SaleType: model.SaleTypeInterval, BillingISO: "P1D"},
	}
}

func shouldSeed(ctx context.Context, gdb *gorm.DB) (bool, error) {
	var cnt int64
	if err := gdb.WithContext(ctx).Model(&model.Service{}).Count(&cnt).Error; err != nil {
		return false, fmt.Errorf("count services: %w", err)
	}
	if cnt == 0 {
		return true, nil
	}
	return strings.EqualFold(os.Getenv("FORCE_SEED"), "true"), nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
