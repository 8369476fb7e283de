package conversation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
)

// newTestDB opens an in-memory SQLite database with the full schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Mailbox{},
		&models.StaffUser{},
		&models.Conversation{},
		&models.ConversationMessage{},
		&models.ConversationEvent{},
		&models.MessageFile{},
	)
	require.NoError(t, err)

	return db
}
