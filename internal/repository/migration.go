package repository

import (
	"fmt"

	"cloudvault/internal/domain/conversation"
	"cloudvault/internal/domain/encryption"

	"gorm.io/gorm"
)

// Models lists every table the service owns, in creation order.
func Models() []any {
	return []any{
		&conversation.Participant{},
		&encryption.PublicKey{},
		&encryption.KeyExchangeRequest{},
		&encryption.ConversationKey{},
		&encryption.ConversationEncryption{},
		&encryption.Notification{},
	}
}

// InitSchema creates the extensions the models rely on and auto-migrates
// the tables.
func InitSchema(db *gorm.DB) error {
	// uuid_generate_v4() defaults. Creating extensions usually requires
	// superuser privileges; pre-install it otherwise.
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("failed to create extension: %w", err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

// MissingTables reports which model tables do not exist yet.
func MissingTables(db *gorm.DB) []string {
	var missing []string
	for _, m := range Models() {
		if !db.Migrator().HasTable(m) {
			stmt := &gorm.Statement{DB: db}
			if err := stmt.Parse(m); err == nil {
				missing = append(missing, stmt.Schema.Table)
			} else {
				missing = append(missing, fmt.Sprintf("%T", m))
			}
		}
	}
	return missing
}
