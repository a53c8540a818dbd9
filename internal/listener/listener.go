// Package listener turns Postgres sync-completed notifications into reconciliation jobs.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/scheduler"
	"bank-reconciliation-backend/internal/services/ingestion"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const (
	DefaultChannel    = "bank_sync_completed"
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
)

type Submitter interface {
	Submit(job scheduler.Job) error
}

// SyncListener submits a TenantReconcileJob for every sync-completed notification.
type SyncListener struct {
	connStr    string
	channel    string
	jobs       Submitter
	reconciler scheduler.Reconciler
	log        zerolog.Logger

	shutdownCh chan struct{}
	done       chan struct{}
}

func NewSyncListener(connStr, channel string, jobs Submitter, reconciler scheduler.Reconciler, log zerolog.Logger) *SyncListener {
	if channel == "" {
		channel = DefaultChannel
	}
	return &SyncListener{
		connStr:    connStr,
		channel:    channel,
		jobs:       jobs,
		reconciler: reconciler,
		log:        log.With().Str("component", "sync_listener").Str("channel", channel).Logger(),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (l *SyncListener) Start(ctx context.Context) {
	go l.listen(ctx)
}

// Stop blocks until the listen loop has exited.
func (l *SyncListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	l.log.Info().Msg("sync listener stopped")
}

func (l *SyncListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			l.log.Info().Msg("reconnecting to notification channel")
		}
	}
}

func (l *SyncListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			l.log.Info().Msg("connected to notification channel")
		case pq.ListenerEventDisconnected:
			l.log.Warn().Err(err).Msg("disconnected from notification channel")
		case pq.ListenerEventReconnected:
			l.log.Info().Msg("reconnected to notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			l.log.Warn().Err(err).Msg("notification channel connection attempt failed")
		}
	})
	defer listener.Close()

	if err := listener.Listen(l.channel); err != nil {
		l.log.Error().Err(err).Msg("failed to listen")
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// connection lost; pq re-listens on reconnect but notifications in between are gone
				return
			}
			if err := l.handleNotification(n); err != nil {
				l.log.Warn().Err(err).Msg("notification ignored")
			}
		case <-ping.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.log.Warn().Err(err).Msg("listener ping failed")
				}
			}()
		}
	}
}

func (l *SyncListener) handleNotification(n *pq.Notification) error {
	var event ingestion.SyncCompleted
	if err := json.Unmarshal([]byte(n.Extra), &event); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	if event.TenantID == uuid.Nil {
		return errors.New("payload without tenant_id")
	}

	l.log.Info().
		Str("tenant_id", event.TenantID.String()).
		Str("sync_run_id", event.SyncRunID.String()).
		Int("transactions_synced", event.TransactionsSynced).
		Msg("sync completed, scheduling reconciliation")

	return l.jobs.Submit(&scheduler.TenantReconcileJob{
		Tenant:      event.TenantID,
		TriggeredBy: models.TriggerWebhook,
		Reconciler:  l.reconciler,
	})
}
