package worker

import (
	"context"
	"time"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/quota"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
)

const defaultReconcileInterval = time.Hour

// Reconciler periodically recomputes usage counters from the attempt log.
// Counters drift when a process dies between a provider success and its
// increment; the sweep repairs them tenant by tenant.
type Reconciler struct {
	tenants  repository.TenantRepository
	ledger   quota.Service
	interval time.Duration
	logger   *logger.Logger
}

func NewReconciler(tenants repository.TenantRepository, ledger quota.Service, interval time.Duration, log *logger.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &Reconciler{
		tenants:  tenants,
		ledger:   ledger,
		interval: interval,
		logger:   log.WithComponent("reconciler"),
	}
}

// Run sweeps until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	ids, err := r.tenants.ListActiveIDs(ctx)
	if err != nil {
		r.logger.Error(err, "failed to list tenants for reconciliation")
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := r.ledger.Reconcile(ctx, id); err != nil {
			r.logger.Error(err, "failed to reconcile tenant usage", "tenant_id", id.String())
		}
	}
}
