package listener

import (
	"context"
	"encoding/json"
	"fmt"

	"bank-reconciliation-backend/internal/services/ingestion"

	"gorm.io/gorm"
)

// PGNotifier publishes sync-completed events with pg_notify.
type PGNotifier struct {
	db      *gorm.DB
	channel string
}

func NewPGNotifier(db *gorm.DB, channel string) *PGNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PGNotifier{db: db, channel: channel}
}

func (n *PGNotifier) NotifySyncCompleted(ctx context.Context, event ingestion.SyncCompleted) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", n.channel, string(payload)).Error; err != nil {
		return fmt.Errorf("pg_notify %s: %w", n.channel, err)
	}
	return nil
}
