package scheduler

import (
	"context"
	"fmt"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/services/ingestion"
	"bank-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
)

type Syncer interface {
	Sync(ctx context.Context, req ingestion.SyncRequest) (*ingestion.SyncResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, req matching.ReconcileRequest) (*matching.ReconcileResult, error)
}

type TenantLister interface {
	ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
}

// TenantPipelineJob syncs every active connection of a tenant, then reconciles.
// A sync that fails outright still runs matching over what was stored earlier.
type TenantPipelineJob struct {
	Tenant      uuid.UUID
	TriggeredBy string
	Syncer      Syncer
	Reconciler  Reconciler
}

func (j *TenantPipelineJob) Execute(ctx context.Context) error {
	_, syncErr := j.Syncer.Sync(ctx, ingestion.SyncRequest{TenantID: j.Tenant, TriggeredBy: j.TriggeredBy})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, err := j.Reconciler.Reconcile(ctx, matching.ReconcileRequest{TenantID: j.Tenant, TriggeredBy: j.TriggeredBy}); err != nil {
		if syncErr != nil {
			return fmt.Errorf("sync: %v; reconcile: %w", syncErr, err)
		}
		return fmt.Errorf("reconcile: %w", err)
	}
	if syncErr != nil {
		return fmt.Errorf("sync: %w", syncErr)
	}
	return nil
}

func (j *TenantPipelineJob) TenantID() string    { return j.Tenant.String() }
func (j *TenantPipelineJob) Description() string { return "tenant pipeline" }

// TenantReconcileJob runs one matching pass for a tenant.
type TenantReconcileJob struct {
	Tenant      uuid.UUID
	TriggeredBy string
	Reconciler  Reconciler
}

func (j *TenantReconcileJob) Execute(ctx context.Context) error {
	_, err := j.Reconciler.Reconcile(ctx, matching.ReconcileRequest{TenantID: j.Tenant, TriggeredBy: j.TriggeredBy})
	return err
}

func (j *TenantReconcileJob) TenantID() string    { return j.Tenant.String() }
func (j *TenantReconcileJob) Description() string { return "tenant reconciliation" }

// ActiveTenantPipelines yields one cron-triggered pipeline job per active tenant.
func ActiveTenantPipelines(tenants TenantLister, syncer Syncer, reconciler Reconciler) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		ids, err := tenants.ListActiveIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active tenants: %w", err)
		}
		jobs := make([]Job, 0, len(ids))
		for _, id := range ids {
			jobs = append(jobs, &TenantPipelineJob{
				Tenant:      id,
				TriggeredBy: models.TriggerCron,
				Syncer:      syncer,
				Reconciler:  reconciler,
			})
		}
		return jobs, nil
	}
}
