package repository

import (
	"context"
	"errors"

	"github.com/shinyyama/paychat-backend/internal/model"
	"gorm.io/gorm"
)

var ErrDBNotReady = errors.New("database not initialized")

type ServiceRepository interface {
	Create(ctx context.Context, svc *model.Service) error
	FindByID(ctx context.Context, id uint64) (*model.Service, error)
	List(ctx context.Context, limit, offset int, vendorUID string) ([]model.Service, int64, error)
	Update(ctx context.Context, svc *model.Service) error
	DeleteCascade(ctx context.Context, id uint64) error
	SetDB(db *gorm.DB)
}

type serviceRepository struct {
	db *gorm.DB
}

func NewServiceRepository(db *gorm.DB) ServiceRepository {
	return &serviceRepository{db: db}
}

func (r *serviceRepository) Create(ctx context.Context, svc *model.Service) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(svc).Error
}

func (r *serviceRepository) FindByID(ctx context.Context, id uint64) (*model.Service, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var svc model.Service
	if err := r.db.WithContext(ctx).First(&svc, id).Error; err != nil {
		return nil, err
	}
	return &svc, nil
}

func (r *serviceRepository) List(ctx context.Context, limit, offset int, vendorUID string) ([]model.Service, int64, error) {
	if r.db == nil {
		return nil, 0, ErrDBNotReady
	}
	var (
		list  []model.Service
		total int64
	)
	q := r.db.WithContext(ctx).Model(&model.Service{})
	if vendorUID != "" {
		q = q.Where("vendor_uid = ?", vendorUID)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := q.Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *serviceRepository) Update(ctx context.Context, svc *model.Service) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Save(svc).Error
}

// DeleteCascade removes the service together with its chats and their messages.
func (r *serviceRepository) DeleteCascade(ctx context.Context, id uint64) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chatIDs := tx.Model(&model.Chat{}).Select("id").Where("service_id = ?", id)
		if err := tx.Where("chat_id IN (?)", chatIDs).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("service_id = ?", id).Delete(&model.Chat{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Service{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *serviceRepository) SetDB(db *gorm.DB) {
	r.db = db
}
