package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shinyyama/paychat-backend/internal/model"
	"gorm.io/gorm"
)

type ChatRepository interface {
	FindOrCreate(ctx context.Context, serviceID uint64, buyerUID, vendorUID string, saleType model.SaleType, expiresAt *time.Time) (*model.Chat, error)
	FindByID(ctx context.Context, id uint64) (*model.Chat, error)
	FindByServiceAndBuyer(ctx context.Context, serviceID uint64, buyerUID string) (*model.Chat, error)
	FindByUser(ctx context.Context, uid string) ([]model.Chat, error)
	Renew(ctx context.Context, id uint64, expiresAt time.Time) error
	Lock(ctx context.Context, id uint64) error
	CreateMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, chatID uint64) ([]model.Message, error)
	LastMessages(ctx context.Context, chatIDs []uint64) (map[uint64]model.Message, error)
	Transaction(ctx context.Context, fn func(chats ChatRepository, purchases PurchaseRepository) error) error
	SetDB(db *gorm.DB)
}

type chatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) SetDB(db *gorm.DB) {
	r.db = db
}

// FindOrCreate returns the single chat for (serviceID, buyerUID). An existing
// chat takes the new sale type and expiry and is unlocked.
func (r *chatRepository) FindOrCreate(ctx context.Context, serviceID uint64, buyerUID, vendorUID string, saleType model.SaleType, expiresAt *time.Time) (*model.Chat, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	existing, err := r.FindByServiceAndBuyer(ctx, serviceID, buyerUID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing == nil {
		cv := model.Chat{
			ServiceID: serviceID,
			BuyerUID:  buyerUID,
			VendorUID: vendorUID,
			SaleType:  saleType,
			ExpiresAt: expiresAt,
		}
		err := r.db.WithContext(ctx).Create(&cv).Error
		if err == nil {
			return &cv, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// lost a create race against the unique key; the row exists now
		if existing, err = r.FindByServiceAndBuyer(ctx, serviceID, buyerUID); err != nil {
			return nil, err
		}
	}
	cv := *existing

	if err := r.db.WithContext(ctx).
		Model(&model.Chat{}).
		Where("id = ?", cv.ID).
		Updates(map[string]interface{}{
			"sale_type":  saleType,
			"expires_at": expiresAt,
			"locked":     false,
		}).Error; err != nil {
		return nil, err
	}
	cv.SaleType = saleType
	cv.ExpiresAt = expiresAt
	cv.Locked = false
	return &cv, nil
}

func (r *chatRepository) FindByID(ctx context.Context, id uint64) (*model.Chat, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var cv model.Chat
	if err := r.db.WithContext(ctx).First(&cv, id).Error; err != nil {
		return nil, err
	}
	return &cv, nil
}

func (r *chatRepository) FindByServiceAndBuyer(ctx context.Context, serviceID uint64, buyerUID string) (*model.Chat, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var cv model.Chat
	if err := r.db.WithContext(ctx).
		Where("service_id = ? AND buyer_uid = ?", serviceID, buyerUID).
		First(&cv).Error; err != nil {
		return nil, err
	}
	return &cv, nil
}

func (r *chatRepository) FindByUser(ctx context.Context, uid string) ([]model.Chat, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Chat
	if err := r.db.WithContext(ctx).
		Where("vendor_uid = ? OR buyer_uid = ?", uid, uid).
		Order("updated_at DESC, id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *chatRepository) Renew(ctx context.Context, id uint64, expiresAt time.Time) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Chat{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sale_type":  model.SaleTypeInterval,
			"expires_at": expiresAt,
			"locked":     false,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Lock blocks the buyer. expires_at is left as it was.
func (r *chatRepository) Lock(ctx context.Context, id uint64) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Chat{}).
		Where("id = ?", id).
		Update("locked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *model.Message) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *chatRepository) ListMessages(ctx context.Context, chatID uint64) ([]model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var msgs []model.Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *chatRepository) LastMessages(ctx context.Context, chatIDs []uint64) (map[uint64]model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	out := make(map[uint64]model.Message, len(chatIDs))
	if len(chatIDs) == 0 {
		return out, nil
	}
	latest := r.db.Model(&model.Message{}).
		Select("MAX(id)").
		Where("chat_id IN ?", chatIDs).
		Group("chat_id")
	var msgs []model.Message
	if err := r.db.WithContext(ctx).
		Where("id IN (?)", latest).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.ChatID] = m
	}
	return out, nil
}

func (r *chatRepository) Transaction(ctx context.Context, fn func(chats ChatRepository, purchases PurchaseRepository) error) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewChatRepository(tx), NewPurchaseRepository(tx))
	})
}
