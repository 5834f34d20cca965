package db

import (
	"peerdesk/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Account{},
		&models.User{},
		&models.Rates{},
		&models.Trade{},
		&models.EscalatedTrade{},
		&models.Notification{},
		&models.ActivityLog{},
	)
}
