package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/shinyyama/paychat-backend/internal/service"
)

type ServiceHandler struct {
	svc service.CatalogService
}

func NewServiceHandler(svc service.CatalogService) *ServiceHandler {
	return &ServiceHandler{svc: svc}
}

type ServiceRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	PriceCents  *int64          `json:"priceCents"`
	SaleType    *model.SaleType `json:"saleType"`
	BillingISO  *string         `json:"billingIso"`
}

func (r ServiceRequest) input() service.ServiceInput {
	return service.ServiceInput{
		Title:       r.Title,
		Description: r.Description,
		PriceCents:  r.PriceCents,
		SaleType:    r.SaleType,
		BillingISO:  r.BillingISO,
	}
}

type ServiceResponse struct {
	ID          uint64  `json:"id"`
	VendorUID   string  `json:"vendorUid"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	PriceCents  int64   `json:"priceCents"`
	AssetCode   *string `json:"assetCode"`
	SaleType    string  `json:"saleType"`
	BillingISO  *string `json:"billingIso"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

func toServiceResponse(s *model.Service) ServiceResponse {
	return ServiceResponse{
		ID:          s.ID,
		VendorUID:   s.VendorUID,
		Title:       s.Title,
		Description: s.Description,
		PriceCents:  s.PriceCents,
		AssetCode:   s.AssetCode,
		SaleType:    string(s.SaleType),
		BillingISO:  s.BillingISO,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   s.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *ServiceHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	list, total, err := h.svc.List(c.Request().Context(), limit, offset, c.QueryParam("vendor"))
	if err != nil {
		return writeError(c, err)
	}
	items := make([]ServiceResponse, 0, len(list))
	for i := range list {
		items = append(items, toServiceResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": items,
		"total": total,
	})
}

func (h *ServiceHandler) Get(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid id"))
	}
	svc, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toServiceResponse(svc))
}

func (h *ServiceHandler) Create(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	var req ServiceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	svc, err := h.svc.Create(c.Request().Context(), uid, req.input())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toServiceResponse(svc))
}

func (h *ServiceHandler) Update(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid id"))
	}
	var req ServiceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	svc, err := h.svc.Update(c.Request().Context(), id, uid, req.input())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toServiceResponse(svc))
}

func (h *ServiceHandler) Delete(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id, uid); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
