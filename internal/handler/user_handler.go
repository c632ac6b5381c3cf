package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/shinyyama/paychat-backend/internal/service"
)

type UserHandler struct {
	svc service.UserService
}

func NewUserHandler(svc service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

type UserResponse struct {
	UID              string `json:"uid"`
	DisplayName      string `json:"displayName"`
	WalletAddressURL string `json:"walletAddressUrl"`
	Role             string `json:"role"`
	CreatedAt        string `json:"createdAt"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		UID:              u.UID,
		DisplayName:      u.DisplayName,
		WalletAddressURL: u.WalletAddressURL,
		Role:             string(u.Role),
		CreatedAt:        u.CreatedAt.Format(time.RFC3339),
	}
}

type PublicUserResponse struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

func (h *UserHandler) GetPublic(c echo.Context) error {
	uid := c.Param("uid")
	if uid == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid uid"))
	}
	user, err := h.svc.Get(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, PublicUserResponse{
		UID:         user.UID,
		DisplayName: user.DisplayName,
		Role:        string(user.Role),
	})
}

func (h *UserHandler) Me(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	user, err := h.svc.Get(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
	Wallet      string `json:"wallet"`
	Role        string `json:"role"`
}

func (h *UserHandler) SaveMe(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	user, err := h.svc.Save(c.Request().Context(), uid, service.ProfileInput{
		DisplayName: req.DisplayName,
		Wallet:      req.Wallet,
		Role:        model.Role(req.Role),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// MyAsset reports the currency of the caller's wallet.
func (h *UserHandler) MyAsset(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	wa, err := h.svc.Asset(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"assetCode":  wa.AssetCode,
		"assetScale": wa.AssetScale,
	})
}
