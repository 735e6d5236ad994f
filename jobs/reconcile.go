package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/0x3b3fc/erp-pro-sub001/internal/observability"
)

const reconcileFanout = 4

// ReconcileJob recomputes per-account balances from posted journal lines and
// compares them against the running balances on the accounts table. It only
// reports drift; it never rewrites a balance.
type ReconcileJob struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewReconcileJob initialises the reconcile handler.
func NewReconcileJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *ReconcileJob {
	return &ReconcileJob{
		pool:    pool,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Drift describes one account whose stored balance disagrees with the sum of
// its posted journal lines.
type Drift struct {
	TenantID    uuid.UUID
	AccountID   uuid.UUID
	AccountCode string
	Stored      decimal.Decimal
	Computed    decimal.Decimal
}

// Handle executes a reconcile run across all tenants.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.pool == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tenants, err := j.tenants(ctx)
	if err != nil {
		j.metrics.RecordJob(TaskLedgerReconcile, "failure")
		return err
	}

	var drifted int
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileFanout)
	results := make([][]Drift, len(tenants))
	for i, tenantID := range tenants {
		i, tenantID := i, tenantID
		g.Go(func() error {
			drifts, err := j.reconcileTenant(gctx, tenantID)
			if err != nil {
				return err
			}
			results[i] = drifts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		j.metrics.RecordJob(TaskLedgerReconcile, "failure")
		j.logger.Error("ledger reconcile failed", slog.Any("error", err))
		return err
	}

	for _, drifts := range results {
		for _, d := range drifts {
			drifted++
			j.logger.Warn("ledger balance drift",
				slog.String("tenant_id", d.TenantID.String()),
				slog.String("account_id", d.AccountID.String()),
				slog.String("account_code", d.AccountCode),
				slog.String("stored", d.Stored.String()),
				slog.String("computed", d.Computed.String()))
		}
	}

	status := "clean"
	if drifted > 0 {
		status = "drift"
	}
	j.metrics.RecordJob(TaskLedgerReconcile, status)
	j.logger.Info("ledger reconcile finished",
		slog.Int("tenants", len(tenants)),
		slog.Int("drifted_accounts", drifted),
		slog.Duration("elapsed", j.now().Sub(start)))
	return nil
}

func (j *ReconcileJob) tenants(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := j.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM accounts ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// reconcileTenant recomputes every posting account's balance for one tenant.
// The CASE mirrors the sign convention used when posting: asset and expense
// accounts are debit-normal, the rest are credit-normal. Lines of reversed
// entries still count because their effect stays on the balance and is only
// cancelled by the reversal entry's own lines.
func (j *ReconcileJob) reconcileTenant(ctx context.Context, tenantID uuid.UUID) ([]Drift, error) {
	rows, err := j.pool.Query(ctx, `
SELECT a.id, a.code, a.balance,
       COALESCE(SUM(
           CASE WHEN a.type IN ('ASSET','EXPENSE') THEN l.debit - l.credit
                ELSE l.credit - l.debit END
       ) FILTER (WHERE e.status IN ('POSTED','REVERSED')), 0) AS computed
FROM accounts a
LEFT JOIN journal_lines l ON l.tenant_id = a.tenant_id AND l.account_id = a.id
LEFT JOIN journal_entries e ON e.tenant_id = l.tenant_id AND e.id = l.entry_id
WHERE a.tenant_id = $1 AND a.is_header = false
GROUP BY a.id, a.code, a.balance
HAVING a.balance <> COALESCE(SUM(
           CASE WHEN a.type IN ('ASSET','EXPENSE') THEN l.debit - l.credit
                ELSE l.credit - l.debit END
       ) FILTER (WHERE e.status IN ('POSTED','REVERSED')), 0)`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []Drift
	for rows.Next() {
		d := Drift{TenantID: tenantID}
		if err := rows.Scan(&d.AccountID, &d.AccountCode, &d.Stored, &d.Computed); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}
