package db

import (
	"context"
	"time"

	"url-shortener/internal/shortener"

	"github.com/jinzhu/gorm"
)

type linkRow struct {
	ID          string    `gorm:"primary_key;type:varchar(36)"`
	OwnerID     string    `gorm:"type:varchar(36);not null;index:idx_links_owner_url"`
	OriginalURL string    `gorm:"type:text;not null;index:idx_links_owner_url"`
	ShortCode   string    `gorm:"type:varchar(20);not null;unique_index"`
	CreatedAt   time.Time `gorm:"not null"`
	ClickCount  int64     `gorm:"not null;default:0"`
}

func (linkRow) TableName() string { return "links" }

type clickRow struct {
	ID        string    `gorm:"primary_key;type:varchar(36)"`
	LinkID    string    `gorm:"type:varchar(36);not null;index:idx_clicks_link_id"`
	UserAgent string    `gorm:"type:text"`
	Referrer  string    `gorm:"type:text"`
	ClickedAt time.Time `gorm:"not null"`
}

func (clickRow) TableName() string { return "clicks" }

func (r *linkRow) toLink() *shortener.Link {
	return &shortener.Link{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		OriginalURL: r.OriginalURL,
		ShortCode:   r.ShortCode,
		CreatedAt:   r.CreatedAt,
		ClickCount:  r.ClickCount,
	}
}

// Store implements shortener.Store and auth.AccountStore on gorm.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.DB().PingContext(ctx)
}

func (s *Store) findLink(ctx context.Context, query string, args ...interface{}) (*shortener.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row linkRow
	if err := s.db.Where(query, args...).Order("created_at asc").First(&row).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, shortener.ErrNotFound
		}
		return nil, err
	}
	return row.toLink(), nil
}

func (s *Store) FindByCode(ctx context.Context, code string) (*shortener.Link, error) {
	return s.findLink(ctx, "short_code = ?", code)
}

func (s *Store) FindByID(ctx context.Context, id string) (*shortener.Link, error) {
	return s.findLink(ctx, "id = ?", id)
}

func (s *Store) FindByOwnerAndURL(ctx context.Context, ownerID, originalURL string) (*shortener.Link, error) {
	return s.findLink(ctx, "owner_id = ? AND original_url = ?", ownerID, originalURL)
}

func (s *Store) Insert(ctx context.Context, link *shortener.Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := linkRow{
		ID:          link.ID,
		OwnerID:     link.OwnerID,
		OriginalURL: link.OriginalURL,
		ShortCode:   link.ShortCode,
		CreatedAt:   link.CreatedAt,
		ClickCount:  link.ClickCount,
	}
	if err := s.db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return shortener.ErrUniquenessViolation
		}
		return err
	}
	return nil
}

// updateOwned sets one column on a link matched by id and owner.
func (s *Store) updateOwned(ctx context.Context, id, ownerID, column string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res := s.db.Model(&linkRow{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		UpdateColumn(column, value)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return shortener.ErrUniquenessViolation
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shortener.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateCode(ctx context.Context, id, ownerID, code string) error {
	return s.updateOwned(ctx, id, ownerID, "short_code", code)
}

func (s *Store) UpdateURL(ctx context.Context, id, ownerID, originalURL string) error {
	return s.updateOwned(ctx, id, ownerID, "original_url", originalURL)
}

// Delete removes the link and its clicks in one transaction.
func (s *Store) Delete(ctx context.Context, id, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	res := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&linkRow{})
	if res.Error != nil {
		tx.Rollback()
		return res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return shortener.ErrNotFound
	}
	if err := tx.Where("link_id = ?", id).Delete(&clickRow{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func (s *Store) IncrementClickCount(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res := s.db.Model(&linkRow{}).
		Where("id = ?", id).
		UpdateColumn("click_count", gorm.Expr("click_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shortener.ErrNotFound
	}
	return nil
}

func (s *Store) InsertClick(ctx context.Context, click *shortener.Click) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := clickRow{
		ID:        click.ID,
		LinkID:    click.LinkID,
		UserAgent: click.UserAgent,
		Referrer:  click.Referrer,
		ClickedAt: click.ClickedAt,
	}
	return s.db.Create(&row).Error
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]shortener.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []linkRow
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	links := make([]shortener.Link, 0, len(rows))
	for i := range rows {
		links = append(links, *rows[i].toLink())
	}
	return links, nil
}

func (s *Store) ListClicks(ctx context.Context, linkID string) ([]shortener.Click, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []clickRow
	if err := s.db.Where("link_id = ?", linkID).Order("clicked_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	clicks := make([]shortener.Click, 0, len(rows))
	for _, r := range rows {
		clicks = append(clicks, shortener.Click{
			ID:        r.ID,
			LinkID:    r.LinkID,
			UserAgent: r.UserAgent,
			Referrer:  r.Referrer,
			ClickedAt: r.ClickedAt,
		})
	}
	return clicks, nil
}
