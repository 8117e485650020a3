package db

import (
	"context"
	"strings"
	"time"

	"url-shortener/internal/auth"

	"github.com/jinzhu/gorm"
)

type accountRow struct {
	ID           string    `gorm:"primary_key;type:varchar(36)"`
	Email        string    `gorm:"type:varchar(255);not null;unique_index"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (accountRow) TableName() string { return "accounts" }

func (r *accountRow) toAccount() *auth.Account {
	return &auth.Account{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

func (s *Store) findAccount(ctx context.Context, query string, arg string) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row accountRow
	if err := s.db.Where(query, arg).First(&row).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, auth.ErrAccountNotFound
		}
		return nil, err
	}
	return row.toAccount(), nil
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return s.findAccount(ctx, "email = ?", strings.ToLower(email))
}

func (s *Store) FindAccountByID(ctx context.Context, id string) (*auth.Account, error) {
	return s.findAccount(ctx, "id = ?", id)
}

func (s *Store) InsertAccount(ctx context.Context, account *auth.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := accountRow{
		ID:           account.ID,
		Email:        strings.ToLower(account.Email),
		PasswordHash: account.PasswordHash,
		CreatedAt:    account.CreatedAt,
	}
	if err := s.db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res := s.db.Model(&accountRow{}).Where("id = ?", id).UpdateColumn("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}
