package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shinyyama/paychat-backend/internal/db"
	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/shinyyama/paychat-backend/internal/openpayments"
	"github.com/shinyyama/paychat-backend/internal/pending"
	"github.com/shinyyama/paychat-backend/internal/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeNetwork plays both the buyer's and the vendor's Open Payments servers.
type fakeNetwork struct {
	mu sync.Mutex

	wallets map[string]*openpayments.WalletAddress
	grants  []openpayments.GrantRequest
	seq     int

	incomingGrantPending bool
	outgoingGrantFinal   bool
	continueNotFinal     bool
	continueErr          error
	paymentErr           error

	continued []string
	cancelled []string
	payments  []openpayments.OutgoingPaymentRequest
}

func newFakeNetwork() *fakeNetwork {
	n := &fakeNetwork{wallets: map[string]*openpayments.WalletAddress{}}
	for _, name := range []string{"alice", "bob", "carol"} {
		n.wallets["https://wallet.test/"+name] = &openpayments.WalletAddress{
			ID:             "https://wallet.test/" + name,
			AssetCode:      "USD",
			AssetScale:     2,
			AuthServer:     "https://auth.test/" + name,
			ResourceServer: "https://rs.test/" + name,
		}
	}
	return n
}

func (n *fakeNetwork) next() int {
	n.seq++
	return n.seq
}

func (n *fakeNetwork) GetWalletAddress(_ context.Context, url string) (*openpayments.WalletAddress, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	wa, ok := n.wallets[url]
	if !ok {
		return nil, &openpayments.APIError{Operation: "wallet_address.get", Status: 404}
	}
	cp := *wa
	return &cp, nil
}

func (n *fakeNetwork) RequestGrant(_ context.Context, authServer string, req openpayments.GrantRequest) (*openpayments.Grant, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.grants = append(n.grants, req)

	typ := req.AccessToken.Access[0].Type
	interactive := req.Interact != nil && !n.outgoingGrantFinal
	if typ == openpayments.AccessIncomingPayment && n.incomingGrantPending {
		interactive = true
	}
	if interactive {
		id := fmt.Sprintf("%s-%d", typ, n.next())
		if req.Interact != nil && req.Interact.Finish != nil {
			id = req.Interact.Finish.Nonce
		}
		g := &openpayments.Grant{
			Interact: &openpayments.InteractResponse{Redirect: authServer + "/approve/" + id},
			Continue: &openpayments.Continue{URI: authServer + "/continue/" + id},
		}
		g.Continue.AccessToken.Value = "cont-" + id
		return g, nil
	}
	return &openpayments.Grant{AccessToken: &openpayments.AccessToken{Value: fmt.Sprintf("tok-%s-%d", typ, n.next())}}, nil
}

func (n *fakeNetwork) ContinueGrant(_ context.Context, uri, token, ref string) (*openpayments.Grant, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.continued = append(n.continued, token)
	if n.continueErr != nil {
		return nil, n.continueErr
	}
	if n.continueNotFinal {
		return &openpayments.Grant{Continue: &openpayments.Continue{URI: uri}}, nil
	}
	g := &openpayments.Grant{
		AccessToken: &openpayments.AccessToken{Value: "out-" + token},
		Continue:    &openpayments.Continue{URI: uri + "/manage"},
	}
	g.Continue.AccessToken.Value = "manage-" + token
	return g, nil
}

func (n *fakeNetwork) CancelGrant(_ context.Context, uri, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, uri)
	return nil
}

func (n *fakeNetwork) CreateIncomingPayment(_ context.Context, rs, token string, req openpayments.IncomingPaymentRequest) (*openpayments.IncomingPayment, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return &openpayments.IncomingPayment{
		ID:             fmt.Sprintf("%s/incoming-payments/%d", rs, n.next()),
		WalletAddress:  req.WalletAddress,
		IncomingAmount: req.IncomingAmount,
	}, nil
}

func (n *fakeNetwork) CreateQuote(_ context.Context, rs, token string, req openpayments.QuoteRequest) (*openpayments.Quote, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return &openpayments.Quote{ID: fmt.Sprintf("%s/quotes/%d", rs, n.next()), Receiver: req.Receiver, WalletAddress: req.WalletAddress}, nil
}

func (n *fakeNetwork) GetQuote(_ context.Context, url, token string) (*openpayments.Quote, error) {
	return &openpayments.Quote{
		ID:          url,
		DebitAmount: openpayments.Amount{Value: "1010", AssetCode: "USD", AssetScale: 2},
	}, nil
}

func (n *fakeNetwork) CreateOutgoingPayment(_ context.Context, rs, token string, req openpayments.OutgoingPaymentRequest) (*openpayments.OutgoingPayment, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.paymentErr != nil {
		return nil, n.paymentErr
	}
	n.payments = append(n.payments, req)
	return &openpayments.OutgoingPayment{ID: fmt.Sprintf("%s/outgoing-payments/%d", rs, n.next()), QuoteID: req.QuoteID}, nil
}

func (n *fakeNetwork) lastGrant() openpayments.GrantRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.grants[len(n.grants)-1]
}

type fixture struct {
	db            *gorm.DB
	network       *fakeNetwork
	registry      *pending.Registry
	services      repository.ServiceRepository
	users         repository.UserRepository
	chats         repository.ChatRepository
	purchases     repository.PurchaseRepository
	notifications repository.NotificationRepository
	purchase      *purchaseService

	oneshot  *model.Service
	interval *model.Service

	mu    sync.Mutex
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.OpenMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		db:            gdb,
		network:       newFakeNetwork(),
		services:      repository.NewServiceRepository(gdb),
		users:         repository.NewUserRepository(gdb),
		chats:         repository.NewChatRepository(gdb),
		purchases:     repository.NewPurchaseRepository(gdb),
		notifications: repository.NewNotificationRepository(gdb),
		clock:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.registry = pending.NewRegistry(15*time.Minute, nil, pending.WithClock(f.now))
	ctx := context.Background()
	for _, u := range []model.User{
		{UID: "alice", DisplayName: "Alice", WalletAddressURL: "https://wallet.test/alice", Role: model.RoleBuyer},
		{UID: "bob", DisplayName: "Bob", WalletAddressURL: "https://wallet.test/bob", Role: model.RoleVendor},
		{UID: "carol", DisplayName: "Carol", WalletAddressURL: "https://wallet.test/carol", Role: model.RoleBuyerVendor},
		{UID: "dave", DisplayName: "Dave", Role: model.RoleBuyer},
	} {
		u := u
		require.NoError(t, f.users.Upsert(ctx, &u))
	}

	pt1m := "PT1M"
	f.oneshot = &model.Service{VendorUID: "bob", Title: "Code review", PriceCents: 1500, SaleType: model.SaleTypeOneShot}
	f.interval = &model.Service{VendorUID: "bob", Title: "Office hours", PriceCents: 1000, SaleType: model.SaleTypeInterval, BillingISO: &pt1m}
	require.NoError(t, f.services.Create(ctx, f.oneshot))
	require.NoError(t, f.services.Create(ctx, f.interval))

	f.purchase = NewPurchaseService(PurchaseDeps{
		Services:      f.services,
		Users:         f.users,
		Chats:         f.chats,
		Notifications: NewNotificationService(f.notifications),
		Network:       f.network,
		Pending:       f.registry,
		Config: PurchaseConfig{
			CallbackURL:    "https://api.test/api/purchases/callback",
			IncomingExpiry: 10 * time.Minute,
			DefaultBilling: "PT1H",
		},
	}).(*purchaseService)
	f.purchase.now = f.now
	nonces := 0
	f.purchase.newNonce = func() string {
		f.mu.Lock()
		defer f.mu.Unlock()
		nonces++
		return fmt.Sprintf("nonce-%d", nonces)
	}
	return f
}

func (f *fixture) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.clock = f.clock.Add(d)
	f.mu.Unlock()
}

func (f *fixture) messages(t *testing.T, chatID uint64) []model.Message {
	t.Helper()
	msgs, err := f.chats.ListMessages(context.Background(), chatID)
	require.NoError(t, err)
	return msgs
}

func (f *fixture) chatCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.Chat{}).Count(&n).Error)
	return n
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
