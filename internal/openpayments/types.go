package openpayments

import "time"

// Access types and actions used in grant requests.
const (
	AccessIncomingPayment = "incoming-payment"
	AccessQuote           = "quote"
	AccessOutgoingPayment = "outgoing-payment"

	ActionCreate   = "create"
	ActionRead     = "read"
	ActionReadAll  = "read-all"
	ActionList     = "list"
	ActionListAll  = "list-all"
	ActionComplete = "complete"
)

// WalletAddress is the public document served at a wallet address URL.
type WalletAddress struct {
	ID             string `json:"id"`
	PublicName     string `json:"publicName,omitempty"`
	AssetCode      string `json:"assetCode"`
	AssetScale     int    `json:"assetScale"`
	AuthServer     string `json:"authServer"`
	ResourceServer string `json:"resourceServer"`
}

// Amount is a value in minor units of the asset at AssetScale.
type Amount struct {
	Value      string `json:"value"`
	AssetCode  string `json:"assetCode"`
	AssetScale int    `json:"assetScale"`
}

// Limits restricts an outgoing-payment grant.
type Limits struct {
	DebitAmount   *Amount `json:"debitAmount,omitempty"`
	ReceiveAmount *Amount `json:"receiveAmount,omitempty"`
	Interval      string  `json:"interval,omitempty"`
}

// AccessItem is one entry of access_token.access.
type AccessItem struct {
	Type       string   `json:"type"`
	Actions    []string `json:"actions"`
	Identifier string   `json:"identifier,omitempty"`
	Limits     *Limits  `json:"limits,omitempty"`
}

// InteractFinish tells the authorization server where to send the user back.
type InteractFinish struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
	Nonce  string `json:"nonce"`
}

// Interact requests a redirect-based user interaction.
type Interact struct {
	Start  []string        `json:"start"`
	Finish *InteractFinish `json:"finish,omitempty"`
}

// RedirectInteract builds the interaction block used for outgoing-payment grants.
func RedirectInteract(callbackURL, nonce string) *Interact {
	return &Interact{
		Start:  []string{"redirect"},
		Finish: &InteractFinish{Method: "redirect", URI: callbackURL, Nonce: nonce},
	}
}

// GrantRequest is the body posted to an authorization server.
type GrantRequest struct {
	AccessToken struct {
		Access []AccessItem `json:"access"`
	} `json:"access_token"`
	Client   string    `json:"client,omitempty"`
	Interact *Interact `json:"interact,omitempty"`
}

// NewGrantRequest wraps access items and an optional interaction.
func NewGrantRequest(interact *Interact, access ...AccessItem) GrantRequest {
	var g GrantRequest
	g.AccessToken.Access = access
	g.Interact = interact
	return g
}

// AccessToken is an issued token.
type AccessToken struct {
	Value     string       `json:"value"`
	Manage    string       `json:"manage"`
	ExpiresIn int          `json:"expires_in,omitempty"`
	Access    []AccessItem `json:"access,omitempty"`
}

// Continue describes how to continue a grant.
type Continue struct {
	AccessToken struct {
		Value string `json:"value"`
	} `json:"access_token"`
	URI  string `json:"uri"`
	Wait int    `json:"wait,omitempty"`
}

// InteractResponse carries the URL the user must visit.
type InteractResponse struct {
	Redirect string `json:"redirect"`
	Finish   string `json:"finish"`
}

// Grant is either pending (Interact set, no AccessToken) or finalized
// (AccessToken set).
type Grant struct {
	AccessToken *AccessToken      `json:"access_token,omitempty"`
	Continue    *Continue         `json:"continue,omitempty"`
	Interact    *InteractResponse `json:"interact,omitempty"`
}

// IsPending reports whether the grant awaits user interaction.
func (g *Grant) IsPending() bool {
	return g != nil && g.Interact != nil && g.Continue != nil && g.AccessToken == nil
}

// IsFinalized reports whether the grant carries an access token.
func (g *Grant) IsFinalized() bool {
	return g != nil && g.AccessToken != nil && g.AccessToken.Value != ""
}

// IncomingPaymentRequest creates an incoming payment.
type IncomingPaymentRequest struct {
	WalletAddress  string            `json:"walletAddress"`
	IncomingAmount *Amount           `json:"incomingAmount,omitempty"`
	ExpiresAt      *time.Time        `json:"expiresAt,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// IncomingPayment is the receiver-side payment resource.
type IncomingPayment struct {
	ID             string     `json:"id"`
	WalletAddress  string     `json:"walletAddress"`
	IncomingAmount *Amount    `json:"incomingAmount,omitempty"`
	ReceivedAmount *Amount    `json:"receivedAmount,omitempty"`
	Completed      bool       `json:"completed"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// QuoteRequest creates a quote against an incoming payment.
type QuoteRequest struct {
	Method        string `json:"method"`
	WalletAddress string `json:"walletAddress"`
	Receiver      string `json:"receiver"`
}

// Quote is a priced, time-bounded offer.
type Quote struct {
	ID            string     `json:"id"`
	WalletAddress string     `json:"walletAddress"`
	Receiver      string     `json:"receiver"`
	DebitAmount   Amount     `json:"debitAmount"`
	ReceiveAmount Amount     `json:"receiveAmount"`
	Method        string     `json:"method"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// OutgoingPaymentRequest executes a quote.
type OutgoingPaymentRequest struct {
	WalletAddress string            `json:"walletAddress"`
	QuoteID       string            `json:"quoteId"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// OutgoingPayment is the sender-side payment resource.
type OutgoingPayment struct {
	ID            string `json:"id"`
	WalletAddress string `json:"walletAddress"`
	QuoteID       string `json:"quoteId"`
	Failed        bool   `json:"failed"`
	DebitAmount   Amount `json:"debitAmount"`
	SentAmount    Amount `json:"sentAmount"`
}
