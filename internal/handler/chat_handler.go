package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/shinyyama/paychat-backend/internal/service"
)

type ChatHandler struct {
	svc service.ChatService
}

func NewChatHandler(svc service.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type MessageResponse struct {
	ID        uint64 `json:"id"`
	ChatID    uint64 `json:"chatId"`
	SenderUID string `json:"senderUid"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

func toMessageResponse(m *model.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderUID: m.SenderUID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
}

type ChatResponse struct {
	ID           uint64           `json:"id"`
	ServiceID    uint64           `json:"serviceId"`
	ServiceTitle string           `json:"serviceTitle"`
	BuyerUID     string           `json:"buyerUid"`
	BuyerName    string           `json:"buyerName"`
	VendorUID    string           `json:"vendorUid"`
	VendorName   string           `json:"vendorName"`
	SaleType     string           `json:"saleType"`
	State        string           `json:"state"`
	ExpiresAt    *string          `json:"expiresAt"`
	LastMessage  *MessageResponse `json:"lastMessage,omitempty"`
	CreatedAt    string           `json:"createdAt"`
}

func toChatResponse(v service.ChatView) ChatResponse {
	resp := ChatResponse{
		ID:           v.Chat.ID,
		ServiceID:    v.Chat.ServiceID,
		ServiceTitle: v.ServiceTitle,
		BuyerUID:     v.Chat.BuyerUID,
		BuyerName:    v.BuyerName,
		VendorUID:    v.Chat.VendorUID,
		VendorName:   v.VendorName,
		SaleType:     string(v.Chat.SaleType),
		State:        string(v.State),
		CreatedAt:    v.Chat.CreatedAt.Format(time.RFC3339),
	}
	if v.Chat.ExpiresAt != nil {
		val := v.Chat.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &val
	}
	if v.LastMessage != nil {
		m := toMessageResponse(v.LastMessage)
		resp.LastMessage = &m
	}
	return resp
}

func (h *ChatHandler) List(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	list, err := h.svc.List(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]ChatResponse, 0, len(list))
	for _, v := range list {
		resp = append(resp, toChatResponse(v))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) Get(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid chat id"))
	}
	v, err := h.svc.Get(c.Request().Context(), id, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toChatResponse(*v))
}

func (h *ChatHandler) ListMessages(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid chat id"))
	}
	list, err := h.svc.ListMessages(c.Request().Context(), id, uid)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]MessageResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toMessageResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (h *ChatHandler) Send(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid chat id"))
	}
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	msg, err := h.svc.Send(c.Request().Context(), id, uid, req.Text)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toMessageResponse(msg))
}
