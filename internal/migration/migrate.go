package migration

import (
	"fmt"

	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
)

// Models lists every table owned by the chat backend, parents before children
func Models() []interface{} {
	return []interface{}{
		&domain.User{},
		&domain.Conversation{},
		&domain.Message{},
		&domain.Reaction{},
		&domain.StatusPost{},
		&domain.StatusView{},
	}
}

// Run executes AutoMigrate for all chat tables
func Run(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
