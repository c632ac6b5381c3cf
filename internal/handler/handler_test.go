package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/shinyyama/paychat-backend/internal/openpayments"
	"github.com/shinyyama/paychat-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPurchases struct {
	start     *service.StartResult
	err       error
	finalized *service.FinalizeResult
	gotNonce  string
	gotRef    string
	gotBuyer  string
}

func (s *stubPurchases) Start(_ context.Context, _ uint64, buyer string) (*service.StartResult, error) {
	s.gotBuyer = buyer
	return s.start, s.err
}

func (s *stubPurchases) StartInterval(_ context.Context, _ uint64, buyer string) (*service.StartResult, error) {
	s.gotBuyer = buyer
	return s.start, s.err
}

func (s *stubPurchases) Renew(_ context.Context, _ uint64, buyer string) (*service.StartResult, error) {
	s.gotBuyer = buyer
	return s.start, s.err
}

func (s *stubPurchases) Finalize(_ context.Context, nonce, ref string) (*service.FinalizeResult, error) {
	s.gotNonce, s.gotRef = nonce, ref
	return s.finalized, s.err
}

func (s *stubPurchases) Cancel(_ context.Context, nonce, buyer string) error {
	s.gotNonce, s.gotBuyer = nonce, buyer
	return s.err
}

type stubLedger struct{}

func (stubLedger) Purchases(context.Context, string) ([]model.Purchase, error) {
	return []model.Purchase{{ID: 1, Mode: model.PurchaseModeOneShot, AmountCents: 1500}}, nil
}

func (stubLedger) Sales(context.Context, string) (*service.Sales, error) {
	return &service.Sales{Items: []model.Purchase{{ID: 1}, {ID: 2}}, TotalCents: 2500}, nil
}

func serve(h echo.HandlerFunc, method, target, uid string, params map[string]string, body string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var names, values []string
	for k, v := range params {
		names = append(names, k)
		values = append(values, v)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	if uid != "" {
		c.Set("uid", uid)
	}
	_ = h(c)
	return rec
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: service 7", service.ErrNotFound), http.StatusNotFound, "not_found"},
		{service.ErrForbidden, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("%w: wallet missing", service.ErrValidation), http.StatusBadRequest, "bad_request"},
		{service.ErrNoPendingPurchase, http.StatusBadRequest, "no_pending_purchase"},
		{service.ErrPaymentRequired, http.StatusPaymentRequired, "payment_required"},
		{service.ErrProtocolViolation, http.StatusBadGateway, "protocol_violation"},
		{fmt.Errorf("%w: quote.create", openpayments.ErrCircuitOpen), http.StatusBadGateway, "network_unavailable"},
		{fmt.Errorf("quote: %w", &openpayments.APIError{Operation: "quote.create", Status: 400}), http.StatusBadGateway, "network_error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestStartPurchase(t *testing.T) {
	stub := &stubPurchases{start: &service.StartResult{ApproveURL: "https://auth.test/interact", Nonce: "n-1"}}
	h := NewPurchaseHandler(stub, stubLedger{}, "https://app.test/")

	rec := serve(h.Start, http.MethodPost, "/", "alice", map[string]string{"serviceId": "3"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "https://auth.test/interact", got["approveUrl"])
	assert.Equal(t, "n-1", got["nonce"])
	_, hasInterval := got["intervalIso"]
	assert.False(t, hasInterval)
	assert.Equal(t, "alice", stub.gotBuyer)

	rec = serve(h.Start, http.MethodPost, "/", "", map[string]string{"serviceId": "3"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h.StartInterval, http.MethodPost, "/", "alice", map[string]string{"serviceId": "abc"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stub.err = service.ErrForbidden
	rec = serve(h.Renew, http.MethodPost, "/", "carol", map[string]string{"chatId": "9"}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"forbidden"`)
}

func TestCallbackRedirects(t *testing.T) {
	stub := &stubPurchases{finalized: &service.FinalizeResult{PaymentID: "https://rs.test/op/1", ChatID: 12}}
	h := NewPurchaseHandler(stub, stubLedger{}, "https://app.test/")

	rec := serve(h.Callback, http.MethodGet, "/api/purchases/callback?interact_ref=ref-1&nonce=n-1", "", nil, "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "/payment-confirmed", loc.Path)
	assert.Equal(t, "ok", loc.Query().Get("status"))
	assert.Equal(t, "https://rs.test/op/1", loc.Query().Get("pid"))
	assert.Equal(t, "12", loc.Query().Get("chatId"))
	assert.Equal(t, "n-1", stub.gotNonce)
	assert.Equal(t, "ref-1", stub.gotRef)

	stub.err = service.ErrNoPendingPurchase
	rec = serve(h.Callback, http.MethodGet, "/api/purchases/callback?interact_ref=ref-1", "", nil, "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err = url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "error", loc.Query().Get("status"))
	assert.NotEmpty(t, loc.Query().Get("msg"))

	// Declined approvals come back without interact_ref and must still reach
	// the service so the pending context is consumed.
	stub.err = service.ErrValidation
	stub.gotNonce, stub.gotRef = "", "unset"
	rec = serve(h.Callback, http.MethodGet, "/api/purchases/callback?nonce=n-3", "", nil, "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderLocation), "status=error")
	assert.Equal(t, "n-3", stub.gotNonce)
	assert.Empty(t, stub.gotRef)
}

func TestCancelAndLedger(t *testing.T) {
	stub := &stubPurchases{}
	h := NewPurchaseHandler(stub, stubLedger{}, "https://app.test")

	rec := serve(h.Cancel, http.MethodDelete, "/", "alice", map[string]string{"nonce": "n-2"}, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "n-2", stub.gotNonce)

	stub.err = service.ErrNoPendingPurchase
	rec = serve(h.Cancel, http.MethodDelete, "/", "alice", map[string]string{"nonce": "n-2"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h.ListSales, http.MethodGet, "/", "bob", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sales struct {
		Items      []PurchaseResponse `json:"items"`
		TotalCents int64              `json:"totalCents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sales))
	assert.Len(t, sales.Items, 2)
	assert.Equal(t, int64(2500), sales.TotalCents)

	rec = serve(h.ListMine, http.MethodGet, "/", "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mode":"oneshot"`)
}

type stubChats struct {
	service.ChatService
	sendErr error
	text    string
}

func (s *stubChats) Send(_ context.Context, chatID uint64, uid, text string) (*model.Message, error) {
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.text = text
	return &model.Message{ID: 1, ChatID: chatID, SenderUID: uid, Text: text}, nil
}

func TestSendMessage(t *testing.T) {
	stub := &stubChats{}
	h := NewChatHandler(stub)

	rec := serve(h.Send, http.MethodPost, "/", "alice", map[string]string{"id": "4"}, `{"text":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "hello", stub.text)
	assert.Contains(t, rec.Body.String(), `"chatId":4`)

	stub.sendErr = fmt.Errorf("%w: session expired", service.ErrPaymentRequired)
	rec = serve(h.Send, http.MethodPost, "/", "alice", map[string]string{"id": "4"}, `{"text":"hello"}`)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = serve(h.Send, http.MethodPost, "/", "alice", map[string]string{"id": "0"}, `{"text":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubNotifications struct {
	service.NotificationService
	unreadOnly bool
	limit      int
	marked     string
}

func (s *stubNotifications) List(_ context.Context, _ string, unreadOnly bool, limit int) ([]model.Notification, int64, error) {
	s.unreadOnly, s.limit = unreadOnly, limit
	chatID := uint64(7)
	return []model.Notification{{ID: 1, Type: model.NotificationSale, Title: "New sale", ChatID: &chatID}}, 1, nil
}

func (s *stubNotifications) MarkAllRead(_ context.Context, uid string) error {
	s.marked = uid
	return nil
}

func TestNotifications(t *testing.T) {
	stub := &stubNotifications{}
	h := NewNotificationHandler(stub)

	rec := serve(h.List, http.MethodGet, "/?unread_only=false&limit=5", "bob", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, stub.unreadOnly)
	assert.Equal(t, 5, stub.limit)
	assert.Contains(t, rec.Body.String(), `"chatId":7`)
	assert.Contains(t, rec.Body.String(), `"unreadCount":1`)

	rec = serve(h.MarkAllRead, http.MethodPost, "/", "bob", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", stub.marked)

	rec = serve(h.List, http.MethodGet, "/", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
