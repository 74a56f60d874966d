package store

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"echochat/internal/models"
)

type GormMessageStore struct {
	db *gorm.DB
}

func NewGormMessageStore(db *gorm.DB) *GormMessageStore {
	return &GormMessageStore{db: db}
}

func (s *GormMessageStore) Save(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	msg.ID = 0
	// sqlite 以文本存时间，统一成 UTC 才能按时间排序
	msg.Timestamp = msg.Timestamp.UTC()
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

func (s *GormMessageStore) QueryPrivateHistory(ctx context.Context, a, b string, limit int) ([]models.ChatMessage, error) {
	q := s.db.WithContext(ctx).
		Where("type = ?", models.MessageTypePrivate).
		Where("(sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?)", a, b, b, a)

	var msgs []models.ChatMessage
	if limit > 0 {
		// 先倒序取最近 limit 条，再翻转为升序
		q = q.Order("timestamp DESC").Order("id DESC").Limit(limit)
	} else {
		q = q.Order("timestamp ASC").Order("id ASC")
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}
