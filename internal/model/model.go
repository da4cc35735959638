package model

import (
	"gorm.io/gorm"
)

// AutoMigrate 迁移指定模型对应的表，key 为空时迁移全部
func AutoMigrate(db *gorm.DB, key string) error {
	switch key {
	case "", "Note":
		return db.AutoMigrate(&Note{})
	}
	return nil
}
