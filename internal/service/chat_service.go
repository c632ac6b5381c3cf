package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shinyyama/paychat-backend/internal/logger"
	"github.com/shinyyama/paychat-backend/internal/metrics"
	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/shinyyama/paychat-backend/internal/repository"
	"gorm.io/gorm"
)

const maxMessageLen = 2000

// ChatView is a chat with everything the client shows next to it.
type ChatView struct {
	Chat         model.Chat
	State        model.SessionState
	ServiceTitle string
	BuyerName    string
	VendorName   string
	LastMessage  *model.Message
}

type ChatService interface {
	List(ctx context.Context, uid string) ([]ChatView, error)
	Get(ctx context.Context, chatID uint64, uid string) (*ChatView, error)
	ListMessages(ctx context.Context, chatID uint64, uid string) ([]model.Message, error)
	Send(ctx context.Context, chatID uint64, uid, text string) (*model.Message, error)
}

type chatService struct {
	chats    repository.ChatRepository
	services repository.ServiceRepository
	users    repository.UserRepository
	notifier NotificationService
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewChatService(chats repository.ChatRepository, services repository.ServiceRepository, users repository.UserRepository, notifier NotificationService, m *metrics.Metrics) ChatService {
	return &chatService{
		chats:    chats,
		services: services,
		users:    users,
		notifier: notifier,
		metrics:  m,
		now:      time.Now,
	}
}

func (s *chatService) List(ctx context.Context, uid string) ([]ChatView, error) {
	chats, err := s.chats.FindByUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return []ChatView{}, nil
	}
	ids := make([]uint64, 0, len(chats))
	uids := make([]string, 0, len(chats)*2)
	for _, c := range chats {
		ids = append(ids, c.ID)
		uids = append(uids, c.BuyerUID, c.VendorUID)
	}
	last, err := s.chats.LastMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	names, err := s.users.FindByUIDs(ctx, uids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	titles := map[uint64]string{}
	out := make([]ChatView, 0, len(chats))
	for _, c := range chats {
		v := ChatView{
			Chat:       c,
			State:      c.State(now),
			BuyerName:  names[c.BuyerUID].DisplayName,
			VendorName: names[c.VendorUID].DisplayName,
		}
		if m, ok := last[c.ID]; ok {
			v.LastMessage = &m
		}
		if t, ok := titles[c.ServiceID]; ok {
			v.ServiceTitle = t
		} else if svc, err := s.services.FindByID(ctx, c.ServiceID); err == nil {
			titles[c.ServiceID] = svc.Title
			v.ServiceTitle = svc.Title
		}
		out = append(out, v)
	}
	// most recent activity first
	sort.SliceStable(out, func(i, j int) bool {
		return activity(out[i]).After(activity(out[j]))
	})
	return out, nil
}

func (s *chatService) Get(ctx context.Context, chatID uint64, uid string) (*ChatView, error) {
	chat, err := s.participantChat(ctx, chatID, uid)
	if err != nil {
		return nil, err
	}
	v := &ChatView{Chat: *chat, State: chat.State(s.now())}
	if svc, err := s.services.FindByID(ctx, chat.ServiceID); err == nil {
		v.ServiceTitle = svc.Title
	}
	if names, err := s.users.FindByUIDs(ctx, []string{chat.BuyerUID, chat.VendorUID}); err == nil {
		v.BuyerName = names[chat.BuyerUID].DisplayName
		v.VendorName = names[chat.VendorUID].DisplayName
	}
	return v, nil
}

func (s *chatService) ListMessages(ctx context.Context, chatID uint64, uid string) ([]model.Message, error) {
	if _, err := s.participantChat(ctx, chatID, uid); err != nil {
		return nil, err
	}
	msgs, err := s.chats.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.MarkByChat(ctx, uid, chatID); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Uint64("chat", chatID).Str("uid", uid).Msg("mark chat notifications read")
	}
	return msgs, nil
}

// Send appends a message. Buyers are refused with ErrPaymentRequired while
// the session is locked or expired; vendors can always write.
func (s *chatService) Send(ctx context.Context, chatID uint64, uid, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if len(text) > maxMessageLen {
		return nil, fmt.Errorf("%w: message is too long", ErrValidation)
	}
	chat, err := s.participantChat(ctx, chatID, uid)
	if err != nil {
		return nil, err
	}
	if !chat.CanSend(uid, s.now()) {
		s.metrics.MessageRejected()
		return nil, fmt.Errorf("%w: session %s, renew to keep chatting", ErrPaymentRequired, chat.State(s.now()))
	}
	msg := &model.Message{ChatID: chat.ID, SenderUID: uid, Text: text}
	if err := s.chats.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *chatService) participantChat(ctx context.Context, chatID uint64, uid string) (*model.Chat, error) {
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !chat.IsParticipant(uid) {
		return nil, ErrForbidden
	}
	return chat, nil
}

func activity(v ChatView) time.Time {
	if v.LastMessage != nil {
		return v.LastMessage.CreatedAt
	}
	return v.Chat.CreatedAt
}
