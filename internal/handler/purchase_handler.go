package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/paychat-backend/internal/logger"
	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/shinyyama/paychat-backend/internal/service"
)

type PurchaseHandler struct {
	svc    service.PurchaseService
	ledger service.LedgerService
	origin string
}

func NewPurchaseHandler(svc service.PurchaseService, ledger service.LedgerService, origin string) *PurchaseHandler {
	return &PurchaseHandler{svc: svc, ledger: ledger, origin: strings.TrimRight(origin, "/")}
}

type PurchaseResponse struct {
	ID                uint64 `json:"id"`
	ServiceID         uint64 `json:"serviceId"`
	ChatID            uint64 `json:"chatId"`
	BuyerUID          string `json:"buyerUid"`
	VendorUID         string `json:"vendorUid"`
	Mode              string `json:"mode"`
	OutgoingPaymentID string `json:"outgoingPaymentId"`
	AmountCents       int64  `json:"amountCents"`
	AssetCode         string `json:"assetCode"`
	CreatedAt         string `json:"createdAt"`
}

func toPurchaseResponse(p model.Purchase) PurchaseResponse {
	return PurchaseResponse{
		ID:                p.ID,
		ServiceID:         p.ServiceID,
		ChatID:            p.ChatID,
		BuyerUID:          p.BuyerUID,
		VendorUID:         p.VendorUID,
		Mode:              string(p.Mode),
		OutgoingPaymentID: p.OutgoingPaymentID,
		AmountCents:       p.AmountCents,
		AssetCode:         p.AssetCode,
		CreatedAt:         p.CreatedAt.Format(time.RFC3339),
	}
}

func (h *PurchaseHandler) Start(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	serviceID, ok := idParam(c, "serviceId")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid service id"))
	}
	res, err := h.svc.Start(c.Request().Context(), serviceID, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *PurchaseHandler) StartInterval(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	serviceID, ok := idParam(c, "serviceId")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid service id"))
	}
	res, err := h.svc.StartInterval(c.Request().Context(), serviceID, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *PurchaseHandler) Renew(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	chatID, ok := idParam(c, "chatId")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid chat id"))
	}
	res, err := h.svc.Renew(c.Request().Context(), chatID, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Callback is where the authorization server redirects the buyer after
// approval. It always answers with a redirect to the frontend.
func (h *PurchaseHandler) Callback(c echo.Context) error {
	nonce := c.QueryParam("nonce")
	interactRef := c.QueryParam("interact_ref")
	// A missing interact_ref still reaches Finalize so the pending context is
	// consumed and a rejected renewal locks its chat.
	res, err := h.svc.Finalize(c.Request().Context(), nonce, interactRef)
	if err != nil {
		log := logger.FromContext(c.Request().Context())
		log.Warn().Err(err).Str("nonce", nonce).Msg("purchase callback failed")
		return c.Redirect(http.StatusFound, h.failureURL(err.Error()))
	}
	q := url.Values{}
	q.Set("status", "ok")
	q.Set("pid", res.PaymentID)
	q.Set("chatId", strconv.FormatUint(res.ChatID, 10))
	return c.Redirect(http.StatusFound, h.origin+"/payment-confirmed?"+q.Encode())
}

func (h *PurchaseHandler) failureURL(msg string) string {
	q := url.Values{}
	q.Set("status", "error")
	q.Set("msg", msg)
	return h.origin + "/payment-confirmed?" + q.Encode()
}

func (h *PurchaseHandler) Cancel(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	if err := h.svc.Cancel(c.Request().Context(), c.Param("nonce"), uid); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PurchaseHandler) ListMine(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	list, err := h.ledger.Purchases(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]PurchaseResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, toPurchaseResponse(p))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *PurchaseHandler) ListSales(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	sales, err := h.ledger.Sales(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	items := make([]PurchaseResponse, 0, len(sales.Items))
	for _, p := range sales.Items {
		items = append(items, toPurchaseResponse(p))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"items":      items,
		"totalCents": sales.TotalCents,
	})
}
