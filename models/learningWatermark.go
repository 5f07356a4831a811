package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// LearningWatermark tracks how far the pattern learning pass has consumed
// decided matches. Watermark-based consumption (not full rescans) is what
// makes repeated runs idempotent.
type LearningWatermark struct {
	ID          int       `gorm:"primary_key" json:"id"`
	ConsumerKey string    `gorm:"uniqueIndex;size:64;not null" json:"consumer_key"`
	Watermark   time.Time `gorm:"not null" json:"watermark"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const PatternLearningConsumerKey = "pattern_learning"

func GetLearningWatermark(tx *gorm.DB, ctx context.Context, consumerKey string) (time.Time, error) {
	var wm LearningWatermark
	err := tx.WithContext(ctx).Model(&LearningWatermark{}).
		Where("consumer_key = ?", consumerKey).First(&wm).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return wm.Watermark, nil
}

func SetLearningWatermark(tx *gorm.DB, ctx context.Context, consumerKey string, watermark time.Time) error {
	var wm LearningWatermark
	err := tx.WithContext(ctx).Model(&LearningWatermark{}).
		Where("consumer_key = ?", consumerKey).First(&wm).Error
	if err == gorm.ErrRecordNotFound {
		return tx.WithContext(ctx).Create(&LearningWatermark{
			ConsumerKey: consumerKey,
			Watermark:   watermark,
		}).Error
	}
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(&LearningWatermark{}).
		Where("consumer_key = ?", consumerKey).
		Update("watermark", watermark).Error
}
