package store

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"echochat/internal/models"
)

type GormUserDirectory struct {
	db *gorm.DB
}

func NewGormUserDirectory(db *gorm.DB) *GormUserDirectory {
	return &GormUserDirectory{db: db}
}

func (d *GormUserDirectory) Exists(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, nil
	}
	var n int64
	if err := d.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *GormUserDirectory) SetOnlineStatus(ctx context.Context, username string, online bool) error {
	return d.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).
		Update("is_online", online).Error
}

func (d *GormUserDirectory) ListOnline(ctx context.Context) ([]string, error) {
	var names []string
	err := d.db.WithContext(ctx).Model(&models.User{}).
		Where("is_online = ?", true).
		Order("username ASC").
		Pluck("username", &names).Error
	return names, err
}

func (d *GormUserDirectory) FindByUsername(ctx context.Context, username string) (models.User, bool, error) {
	var u models.User
	err := d.db.WithContext(ctx).Where("username = ?", username).Limit(1).Find(&u).Error
	if err != nil {
		return models.User{}, false, err
	}
	if u.ID == "" {
		return models.User{}, false, nil
	}
	return u, true, nil
}

func (d *GormUserDirectory) FindByUsernames(ctx context.Context, usernames []string) ([]models.User, error) {
	usernames = lo.Uniq(lo.Compact(usernames))
	if len(usernames) == 0 {
		return nil, nil
	}
	var users []models.User
	err := d.db.WithContext(ctx).Where("username IN ?", usernames).Order("username ASC").Find(&users).Error
	return users, err
}

func (d *GormUserDirectory) Create(ctx context.Context, u *models.User) error {
	if err := d.db.WithContext(ctx).Create(u).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return ErrDuplicateUser
		}
		return err
	}
	return nil
}

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
