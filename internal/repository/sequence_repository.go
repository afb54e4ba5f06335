package repository

import (
	"context"
	"errors"
	"learnhub_backend/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sequencer 原子递增序列
type Sequencer interface {
	Next(ctx context.Context, name string) (int64, error)
}

// DBSequencer 在事务内对 sequences 行加锁递增
type DBSequencer struct {
	DB *gorm.DB
}

func NewDBSequencer(db *gorm.DB) *DBSequencer {
	return &DBSequencer{DB: db}
}

func (s *DBSequencer) Next(ctx context.Context, name string) (int64, error) {
	var next int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq model.Sequence
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("name = ?", name).First(&seq).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			seq = model.Sequence{Name: name, Value: 1}
			if err := tx.Create(&seq).Error; err != nil {
				return err
			}
			next = 1
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&model.Sequence{}).Where("name = ?", name).
			Update("value", gorm.Expr("value + 1")).Error; err != nil {
			return err
		}
		next = seq.Value + 1
		return nil
	})
	return next, err
}

// RedisSequencer 使用 INCR，多实例共享
type RedisSequencer struct {
	Client *redis.Client
	Prefix string
}

func NewRedisSequencer(client *redis.Client) *RedisSequencer {
	return &RedisSequencer{Client: client, Prefix: "learnhub:seq:"}
}

func (s *RedisSequencer) Next(ctx context.Context, name string) (int64, error) {
	return s.Client.Incr(ctx, s.Prefix+name).Result()
}
