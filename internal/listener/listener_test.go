package listener

import (
	"sync"
	"testing"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/scheduler"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []scheduler.Job
}

func (r *recordingSubmitter) Submit(job scheduler.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func TestHandleNotificationSubmitsReconcileJob(t *testing.T) {
	jobs := &recordingSubmitter{}
	l := NewSyncListener("", "", jobs, nil, zerolog.Nop())
	require.Equal(t, DefaultChannel, l.channel)

	tenant := uuid.New()
	err := l.handleNotification(&pq.Notification{
		Channel: DefaultChannel,
		Extra:   `{"tenant_id":"` + tenant.String() + `","sync_run_id":"` + uuid.NewString() + `","transactions_synced":4}`,
	})
	require.NoError(t, err)
	require.Len(t, jobs.jobs, 1)

	job, ok := jobs.jobs[0].(*scheduler.TenantReconcileJob)
	require.True(t, ok)
	require.Equal(t, tenant, job.Tenant)
	require.Equal(t, models.TriggerWebhook, job.TriggeredBy)
}

func TestHandleNotificationRejectsBadPayloads(t *testing.T) {
	jobs := &recordingSubmitter{}
	l := NewSyncListener("", "bank_sync_completed", jobs, nil, zerolog.Nop())

	require.Error(t, l.handleNotification(&pq.Notification{Extra: "not json"}))
	require.Error(t, l.handleNotification(&pq.Notification{Extra: `{"transactions_synced":2}`}))
	require.Empty(t, jobs.jobs)
}
