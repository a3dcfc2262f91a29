package flags

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// FeatureFlag is the read-only flag table.
type FeatureFlag struct {
	Key       string          `gorm:"primaryKey;type:text"`
	Value     json.RawMessage `gorm:"type:jsonb;not null;default:'{}'::jsonb"`
	UpdatedAt time.Time       `gorm:"not null;default:now()"`
}

type DBSource struct {
	DB *gorm.DB
}

func (s *DBSource) Lookup(ctx context.Context, key string) (Flag, error) {
	var row FeatureFlag
	err := s.DB.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Flag{}, nil
		}
		return Flag{}, err
	}
	return Parse(row.Value), nil
}

// RedisSource reads JSON flag values stored under Prefix+key.
type RedisSource struct {
	Client *redis.Client
	Prefix string
}

func (s *RedisSource) Lookup(ctx context.Context, key string) (Flag, error) {
	raw, err := s.Client.Get(ctx, s.Prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Flag{}, nil
		}
		return Flag{}, err
	}
	return Parse(raw), nil
}
