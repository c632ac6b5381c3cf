package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shinyyama/paychat-backend/internal/interval"
	"github.com/shinyyama/paychat-backend/internal/logger"
	"github.com/shinyyama/paychat-backend/internal/metrics"
	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/shinyyama/paychat-backend/internal/openpayments"
	"github.com/shinyyama/paychat-backend/internal/pending"
	"github.com/shinyyama/paychat-backend/internal/repository"
	"gorm.io/gorm"
)

// Incoming payments created here always use two decimal places.
const incomingAssetScale = 2

type stage string

const (
	stageInitiated          stage = "initiated"
	stageQuoted             stage = "quoted"
	stageInteractionPending stage = "interaction_pending"
	stageFinalized          stage = "finalized"
	stagePaymentCreated     stage = "payment_created"
	stageChatUpdated        stage = "chat_updated"
	stageDone               stage = "done"
	stageFailed             stage = "failed"
)

type StartResult struct {
	ApproveURL  string `json:"approveUrl"`
	Nonce       string `json:"nonce"`
	IntervalISO string `json:"intervalIso,omitempty"`
}

type FinalizeResult struct {
	PaymentID string
	ChatID    uint64
	Mode      model.PurchaseMode
}

type PurchaseService interface {
	Start(ctx context.Context, serviceID uint64, buyerUID string) (*StartResult, error)
	StartInterval(ctx context.Context, serviceID uint64, buyerUID string) (*StartResult, error)
	Renew(ctx context.Context, chatID uint64, buyerUID string) (*StartResult, error)
	Finalize(ctx context.Context, nonce, interactRef string) (*FinalizeResult, error)
	Cancel(ctx context.Context, nonce, buyerUID string) error
}

// PurchaseConfig carries the settings the purchase flow reads from config.
type PurchaseConfig struct {
	CallbackURL    string
	IncomingExpiry time.Duration
	DefaultBilling string
}

type PurchaseDeps struct {
	Services      repository.ServiceRepository
	Users         repository.UserRepository
	Chats         repository.ChatRepository
	Notifications NotificationService
	Network       PaymentNetwork
	Pending       *pending.Registry
	Metrics       *metrics.Metrics
	Config        PurchaseConfig
}

type purchaseService struct {
	services repository.ServiceRepository
	users    repository.UserRepository
	chats    repository.ChatRepository
	notifier NotificationService
	network  PaymentNetwork
	pending  *pending.Registry
	metrics  *metrics.Metrics
	cfg      PurchaseConfig

	now      func() time.Time
	newNonce func() string
}

func NewPurchaseService(d PurchaseDeps) PurchaseService {
	cfg := d.Config
	if cfg.IncomingExpiry <= 0 {
		cfg.IncomingExpiry = 10 * time.Minute
	}
	if !interval.Valid(cfg.DefaultBilling) {
		cfg.DefaultBilling = interval.DefaultBilling
	}
	return &purchaseService{
		services: d.Services,
		users:    d.Users,
		chats:    d.Chats,
		notifier: d.Notifications,
		network:  d.Network,
		pending:  d.Pending,
		metrics:  d.Metrics,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		newNonce: uuid.NewString,
	}
}

func (s *purchaseService) Start(ctx context.Context, serviceID uint64, buyerUID string) (*StartResult, error) {
	svc, err := s.findService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.SaleType != model.SaleTypeOneShot {
		return nil, fmt.Errorf("%w: service %d is sold by interval", ErrValidation, svc.ID)
	}
	return s.begin(ctx, svc, buyerUID, pending.OneShot{})
}

func (s *purchaseService) StartInterval(ctx context.Context, serviceID uint64, buyerUID string) (*StartResult, error) {
	svc, err := s.findService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.SaleType != model.SaleTypeInterval {
		return nil, fmt.Errorf("%w: service %d is sold once", ErrValidation, svc.ID)
	}
	return s.begin(ctx, svc, buyerUID, pending.Interval{Duration: s.billing(svc)})
}

func (s *purchaseService) Renew(ctx context.Context, chatID uint64, buyerUID string) (*StartResult, error) {
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if chat.BuyerUID != buyerUID {
		return nil, ErrForbidden
	}
	if chat.SaleType != model.SaleTypeInterval {
		return nil, fmt.Errorf("%w: chat %d is not an interval session", ErrValidation, chat.ID)
	}
	svc, err := s.findService(ctx, chat.ServiceID)
	if err != nil {
		return nil, err
	}
	return s.begin(ctx, svc, buyerUID, pending.Renewal{ChatID: chat.ID, Duration: s.billing(svc)})
}

// begin runs the steps up to the interactive grant and parks the purchase
// under a fresh nonce.
func (s *purchaseService) begin(ctx context.Context, svc *model.Service, buyerUID string, mode pending.Mode) (*StartResult, error) {
	log := logger.FromContext(ctx).With().
		Uint64("service", svc.ID).
		Str("buyer", buyerUID).
		Str("mode", string(mode.Kind())).
		Logger()
	log.Info().Str("stage", string(stageInitiated)).Msg("purchase")

	buyer, vendor, err := s.parties(ctx, svc, buyerUID)
	if err != nil {
		return nil, err
	}
	if svc.PriceCents <= 0 {
		return nil, fmt.Errorf("%w: service %d has no price", ErrValidation, svc.ID)
	}

	receiver, err := s.network.GetWalletAddress(ctx, vendor.WalletAddressURL)
	if err != nil {
		return nil, fmt.Errorf("receiver wallet: %w", err)
	}
	if svc.AssetCode != nil && *svc.AssetCode != "" && *svc.AssetCode != receiver.AssetCode {
		return nil, fmt.Errorf("%w: service is priced in %s but the vendor wallet holds %s", ErrValidation, *svc.AssetCode, receiver.AssetCode)
	}

	inGrant, err := s.network.RequestGrant(ctx, receiver.AuthServer, openpayments.NewGrantRequest(nil, openpayments.AccessItem{
		Type: openpayments.AccessIncomingPayment,
		Actions: []string{
			openpayments.ActionList, openpayments.ActionRead, openpayments.ActionReadAll,
			openpayments.ActionComplete, openpayments.ActionCreate,
		},
	}))
	if err != nil {
		return nil, fmt.Errorf("incoming payment grant: %w", err)
	}
	if !inGrant.IsFinalized() {
		return nil, fmt.Errorf("%w: incoming payment grant requires interaction", ErrProtocolViolation)
	}

	expiresAt := s.now().Add(s.cfg.IncomingExpiry)
	incoming, err := s.network.CreateIncomingPayment(ctx, receiver.ResourceServer, inGrant.AccessToken.Value, openpayments.IncomingPaymentRequest{
		WalletAddress: receiver.ID,
		IncomingAmount: &openpayments.Amount{
			Value:      strconv.FormatInt(svc.PriceCents, 10),
			AssetCode:  receiver.AssetCode,
			AssetScale: incomingAssetScale,
		},
		ExpiresAt: &expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("incoming payment: %w", err)
	}

	sender, err := s.network.GetWalletAddress(ctx, buyer.WalletAddressURL)
	if err != nil {
		return nil, fmt.Errorf("sender wallet: %w", err)
	}

	quoteGrant, err := s.network.RequestGrant(ctx, sender.AuthServer, openpayments.NewGrantRequest(nil, openpayments.AccessItem{
		Type:    openpayments.AccessQuote,
		Actions: []string{openpayments.ActionCreate, openpayments.ActionRead, openpayments.ActionReadAll},
	}))
	if err != nil {
		return nil, fmt.Errorf("quote grant: %w", err)
	}
	if !quoteGrant.IsFinalized() {
		return nil, fmt.Errorf("%w: quote grant requires interaction", ErrProtocolViolation)
	}

	created, err := s.network.CreateQuote(ctx, sender.ResourceServer, quoteGrant.AccessToken.Value, openpayments.QuoteRequest{
		Method:        "ilp",
		WalletAddress: sender.ID,
		Receiver:      incoming.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create quote: %w", err)
	}
	quote, err := s.network.GetQuote(ctx, created.ID, quoteGrant.AccessToken.Value)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	log.Info().Str("stage", string(stageQuoted)).Str("debit", quote.DebitAmount.Value).Msg("purchase")

	var intervalISO string
	if d := pending.DurationOf(mode); d != "" {
		intervalISO = interval.RepeatingInterval(s.now(), d)
	}

	debit := quote.DebitAmount
	nonce := s.newNonce()
	grant, err := s.network.RequestGrant(ctx, sender.AuthServer, openpayments.NewGrantRequest(
		openpayments.RedirectInteract(s.cfg.CallbackURL, nonce),
		openpayments.AccessItem{
			Type:       openpayments.AccessOutgoingPayment,
			Identifier: sender.ID,
			Actions: []string{
				openpayments.ActionList, openpayments.ActionListAll, openpayments.ActionRead,
				openpayments.ActionReadAll, openpayments.ActionCreate,
			},
			Limits: &openpayments.Limits{DebitAmount: &debit, Interval: intervalISO},
		},
	))
	if err != nil {
		return nil, fmt.Errorf("outgoing payment grant: %w", err)
	}
	if !grant.IsPending() {
		return nil, fmt.Errorf("%w: outgoing payment grant did not ask for interaction", ErrProtocolViolation)
	}

	err = s.pending.Put(nonce, pending.Purchase{
		Mode:           mode,
		BuyerUID:       buyer.UID,
		VendorUID:      vendor.UID,
		Service:        *svc,
		SenderWallet:   *sender,
		ReceiverWallet: *receiver,
		Quote:          *quote,
		ContinueToken:  grant.Continue.AccessToken.Value,
		ContinueURI:    grant.Continue.URI,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.PurchaseStarted(string(mode.Kind()))
	log.Info().Str("stage", string(stageInteractionPending)).Str("nonce", nonce).Msg("purchase")

	return &StartResult{ApproveURL: grant.Interact.Redirect, Nonce: nonce, IntervalISO: intervalISO}, nil
}

// Finalize completes the purchase parked under nonce. The pending entry is
// consumed before any network call, so a nonce can never be finalized twice.
func (s *purchaseService) Finalize(ctx context.Context, nonce, interactRef string) (*FinalizeResult, error) {
	if nonce == "" {
		return nil, fmt.Errorf("%w: nonce is required", ErrNoPendingPurchase)
	}
	p, ok := s.pending.Take(nonce)
	if !ok {
		return nil, ErrNoPendingPurchase
	}
	kind := string(p.Mode.Kind())
	log := logger.FromContext(ctx).With().
		Str("nonce", nonce).
		Str("mode", kind).
		Uint64("service", p.Service.ID).
		Logger()

	res, err := s.finalize(ctx, log, p, interactRef)
	if err != nil {
		log.Error().Err(err).Str("stage", string(stageFailed)).Msg("purchase")
		s.metrics.PurchaseFinalized(kind, "failed")
		if r, ok := p.Mode.(pending.Renewal); ok {
			s.rejectRenewal(context.WithoutCancel(ctx), log, p, r.ChatID)
		}
		return nil, err
	}
	s.metrics.PurchaseFinalized(kind, "ok")
	log.Info().Str("stage", string(stageDone)).Uint64("chat", res.ChatID).Msg("purchase")
	return res, nil
}

func (s *purchaseService) finalize(ctx context.Context, log zerolog.Logger, p pending.Purchase, interactRef string) (*FinalizeResult, error) {
	if interactRef == "" {
		return nil, fmt.Errorf("%w: interact_ref is required", ErrValidation)
	}

	grant, err := s.network.ContinueGrant(ctx, p.ContinueURI, p.ContinueToken, interactRef)
	if err != nil {
		return nil, fmt.Errorf("continue grant: %w", err)
	}
	if !grant.IsFinalized() {
		return nil, fmt.Errorf("%w: continued grant is not finalized", ErrProtocolViolation)
	}
	log.Info().Str("stage", string(stageFinalized)).Msg("purchase")

	payment, err := s.network.CreateOutgoingPayment(ctx, p.SenderWallet.ResourceServer, grant.AccessToken.Value, openpayments.OutgoingPaymentRequest{
		WalletAddress: p.SenderWallet.ID,
		QuoteID:       p.Quote.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("outgoing payment: %w", err)
	}
	log.Info().Str("stage", string(stagePaymentCreated)).Str("payment", payment.ID).Msg("purchase")

	now := s.now()
	var chatID uint64
	err = s.chats.Transaction(ctx, func(chats repository.ChatRepository, purchases repository.PurchaseRepository) error {
		text := fmt.Sprintf("Payment confirmed. Payment ID: %s", payment.ID)
		switch m := p.Mode.(type) {
		case pending.OneShot:
			chat, err := chats.FindOrCreate(ctx, p.Service.ID, p.BuyerUID, p.VendorUID, model.SaleTypeOneShot, nil)
			if err != nil {
				return err
			}
			chatID = chat.ID
		case pending.Interval:
			exp := interval.ExpiresAt(now, m.Duration, s.cfg.DefaultBilling)
			chat, err := chats.FindOrCreate(ctx, p.Service.ID, p.BuyerUID, p.VendorUID, model.SaleTypeInterval, &exp)
			if err != nil {
				return err
			}
			chatID = chat.ID
			text = fmt.Sprintf("Payment confirmed. Session open until %s. Payment ID: %s", interval.FormatTimestamp(exp), payment.ID)
		case pending.Renewal:
			exp := interval.ExpiresAt(now, m.Duration, s.cfg.DefaultBilling)
			if err := chats.Renew(ctx, m.ChatID, exp); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: chat %d", ErrNotFound, m.ChatID)
				}
				return err
			}
			chatID = m.ChatID
			text = fmt.Sprintf("Payment confirmed (renewal). Session open until %s. Payment ID: %s", interval.FormatTimestamp(exp), payment.ID)
		default:
			return fmt.Errorf("unknown purchase mode %T", p.Mode)
		}

		if err := chats.CreateMessage(ctx, &model.Message{ChatID: chatID, SenderUID: p.BuyerUID, Text: text}); err != nil {
			return err
		}
		return purchases.Create(ctx, &model.Purchase{
			ServiceID:         p.Service.ID,
			ChatID:            chatID,
			BuyerUID:          p.BuyerUID,
			VendorUID:         p.VendorUID,
			Mode:              p.Mode.Kind(),
			OutgoingPaymentID: payment.ID,
			AmountCents:       p.Service.PriceCents,
			AssetCode:         p.ReceiverWallet.AssetCode,
		})
	})
	if err != nil {
		// The network already moved the money; keep the payment id in the log.
		log.Error().Err(err).Str("payment", payment.ID).Msg("chat update failed after payment")
		return nil, err
	}
	log.Info().Str("stage", string(stageChatUpdated)).Uint64("chat", chatID).Msg("purchase")

	bg := context.WithoutCancel(ctx)
	typ, title := model.NotificationSale, "New purchase"
	if _, ok := p.Mode.(pending.Renewal); ok {
		typ, title = model.NotificationRenewal, "Session renewed"
	}
	s.notifier.Notify(bg, p.VendorUID, typ, title, fmt.Sprintf("%s (payment %s)", p.Service.Title, payment.ID), uint64Ptr(p.Service.ID), uint64Ptr(chatID))

	if _, ok := p.Mode.(pending.OneShot); ok && grant.Continue != nil {
		if err := s.network.CancelGrant(bg, grant.Continue.URI, grant.Continue.AccessToken.Value); err != nil {
			log.Warn().Err(err).Msg("revoke one-shot grant")
		}
	}

	return &FinalizeResult{PaymentID: payment.ID, ChatID: chatID, Mode: p.Mode.Kind()}, nil
}

// rejectRenewal locks the chat and tells both parties. The previous expiry
// is left as it was.
func (s *purchaseService) rejectRenewal(ctx context.Context, log zerolog.Logger, p pending.Purchase, chatID uint64) {
	err := s.chats.Transaction(ctx, func(chats repository.ChatRepository, _ repository.PurchaseRepository) error {
		if err := chats.Lock(ctx, chatID); err != nil {
			return err
		}
		return chats.CreateMessage(ctx, &model.Message{
			ChatID:    chatID,
			SenderUID: p.VendorUID,
			Text:      "Renewal rejected. The chat has been locked.",
		})
	})
	if err != nil {
		log.Error().Err(err).Uint64("chat", chatID).Msg("lock chat after failed renewal")
		return
	}
	s.notifier.Notify(ctx, p.BuyerUID, model.NotificationRenewalRefused, "Renewal rejected",
		fmt.Sprintf("Your renewal of %s did not go through; the chat is locked until you renew.", p.Service.Title),
		uint64Ptr(p.Service.ID), uint64Ptr(chatID))
}

// Cancel drops a purchase the buyer no longer wants to approve and revokes
// its pending grant. Revocation is best-effort.
func (s *purchaseService) Cancel(ctx context.Context, nonce, buyerUID string) error {
	p, ok := s.pending.TakeIf(nonce, func(p pending.Purchase) bool { return p.BuyerUID == buyerUID })
	if !ok {
		return ErrNoPendingPurchase
	}
	s.metrics.PurchaseFinalized(string(p.Mode.Kind()), "cancelled")
	if err := s.network.CancelGrant(ctx, p.ContinueURI, p.ContinueToken); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("nonce", nonce).Msg("cancel pending grant")
	}
	return nil
}

func (s *purchaseService) findService(ctx context.Context, id uint64) (*model.Service, error) {
	svc, err := s.services.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return svc, nil
}

// parties loads buyer and vendor and checks both can take part in a payment.
func (s *purchaseService) parties(ctx context.Context, svc *model.Service, buyerUID string) (*model.User, *model.User, error) {
	if buyerUID == "" {
		return nil, nil, fmt.Errorf("%w: buyer is required", ErrValidation)
	}
	if buyerUID == svc.VendorUID {
		return nil, nil, fmt.Errorf("%w: cannot buy your own service", ErrValidation)
	}
	users, err := s.users.FindByUIDs(ctx, []string{buyerUID, svc.VendorUID})
	if err != nil {
		return nil, nil, err
	}
	buyer, ok := users[buyerUID]
	if !ok || buyer.WalletAddressURL == "" {
		return nil, nil, fmt.Errorf("%w: buyer wallet address is required", ErrValidation)
	}
	vendor, ok := users[svc.VendorUID]
	if !ok || vendor.WalletAddressURL == "" {
		return nil, nil, fmt.Errorf("%w: vendor wallet address is required", ErrValidation)
	}
	return &buyer, &vendor, nil
}

func (s *purchaseService) billing(svc *model.Service) string {
	if b := svc.Billing(); interval.Valid(b) {
		return b
	}
	return s.cfg.DefaultBilling
}
