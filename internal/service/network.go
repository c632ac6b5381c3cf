package service

import (
	"context"

	"github.com/shinyyama/paychat-backend/internal/openpayments"
)

// PaymentNetwork is the subset of the Open Payments client the purchase
// flow depends on. *openpayments.Client implements it.
type PaymentNetwork interface {
	GetWalletAddress(ctx context.Context, walletURL string) (*openpayments.WalletAddress, error)
	RequestGrant(ctx context.Context, authServer string, req openpayments.GrantRequest) (*openpayments.Grant, error)
	ContinueGrant(ctx context.Context, continueURI, continueToken, interactRef string) (*openpayments.Grant, error)
	CancelGrant(ctx context.Context, continueURI, continueToken string) error
	CreateIncomingPayment(ctx context.Context, resourceServer, token string, req openpayments.IncomingPaymentRequest) (*openpayments.IncomingPayment, error)
	CreateQuote(ctx context.Context, resourceServer, token string, req openpayments.QuoteRequest) (*openpayments.Quote, error)
	GetQuote(ctx context.Context, quoteURL, token string) (*openpayments.Quote, error)
	CreateOutgoingPayment(ctx context.Context, resourceServer, token string, req openpayments.OutgoingPaymentRequest) (*openpayments.OutgoingPayment, error)
}

var _ PaymentNetwork = (*openpayments.Client)(nil)
