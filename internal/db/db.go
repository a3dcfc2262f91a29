package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nudge/internal/auth"
	"nudge/internal/channel"
	"nudge/internal/contact"
	"nudge/internal/flags"
	"nudge/internal/inbound"
	"nudge/internal/outbox"
	"nudge/internal/scheduler"
	"nudge/internal/task"
)

// Connect opens Postgres with driver errors translated, so unique
// violations surface as gorm.ErrDuplicatedKey.
func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&auth.User{},
		&task.Task{},
		&outbox.Message{},
		&contact.Binding{},
		&inbound.Message{},
		&channel.ChatMessage{},
		&flags.FeatureFlag{},
		&scheduler.DailySend{},
		&scheduler.NudgeThrottle{},
	); err != nil {
		return err
	}

	stmts := []string{
		// one owner per address
		`create unique index if not exists uq_contact_bindings_channel_address on contact_bindings(channel, address);`,
		`create index if not exists idx_outbox_due on outbox_messages(status, scheduled_at);`,
		`create index if not exists idx_outbox_claimed on outbox_messages(status, claimed_at) where status = 'sending';`,
		`create index if not exists idx_tasks_user_status_created on tasks(user_id, status, created_at desc);`,
		`create index if not exists idx_tasks_overdue on tasks(user_id, due_at) where status = 'pending' and due_at is not null;`,
		`create index if not exists idx_inbound_user_created on inbound_messages(user_id, created_at desc);`,
		`create index if not exists idx_chat_user_unread on chat_messages(user_id, created_at desc) where read_at is null;`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
