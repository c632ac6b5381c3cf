package repository

import (
	"context"

	"github.com/shinyyama/paychat-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository interface {
	FindByUID(ctx context.Context, uid string) (*model.User, error)
	FindByUIDs(ctx context.Context, uids []string) (map[string]model.User, error)
	Upsert(ctx context.Context, u *model.User) error
	SetDB(db *gorm.DB)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByUID(ctx context.Context, uid string) (*model.User, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var u model.User
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) FindByUIDs(ctx context.Context, uids []string) (map[string]model.User, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	out := make(map[string]model.User, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	var list []model.User
	if err := r.db.WithContext(ctx).Where("uid IN ?", uids).Find(&list).Error; err != nil {
		return nil, err
	}
	for _, u := range list {
		out[u.UID] = u
	}
	return out, nil
}

func (r *userRepository) Upsert(ctx context.Context, u *model.User) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "wallet_address_url", "role", "updated_at"}),
	}).Create(u).Error
}

func (r *userRepository) SetDB(db *gorm.DB) {
	r.db = db
}
