package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/continuous-auth/internal/core/domain"
	"github.com/arklim/continuous-auth/internal/core/port"
)

// AlertRepository implements port.AlertRepository backed by PostgreSQL.
type AlertRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.AlertRepository = (*AlertRepository)(nil)

// NewAlertRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAlertRepository(exec pgExecutor) *AlertRepository {
	repo := &AlertRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *AlertRepository) WithTx(tx pgx.Tx) *AlertRepository {
	if tx == nil {
		return r
	}
	return &AlertRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Insert persists a security alert for later audit queries.
func (r *AlertRepository) Insert(ctx context.Context, alert domain.SecurityAlert) error {
	stmt, args, err := r.builder.Insert("authd.security_alerts").
		Columns(
			"id",
			"user_id",
			"session_id",
			"severity",
			"risk_factors",
			"recommended_actions",
			"combined_confidence",
			"anomaly_score",
			"context",
			"created_at",
		).
		Values(
			alert.ID,
			alert.UserID,
			alert.SessionID,
			string(alert.Severity),
			factorStrings(alert.RiskFactors),
			actionStrings(alert.RecommendedActions),
			alert.CombinedConfidence,
			alert.AnomalyScore,
			alert.Context,
			alert.Timestamp,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert alert sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	return nil
}

// ListRecent retrieves the newest alerts across all sessions.
func (r *AlertRepository) ListRecent(ctx context.Context, limit int) ([]domain.SecurityAlert, error) {
	query := r.alertSelect().OrderBy("created_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list alerts sql: %w", err)
	}

	return r.queryAlerts(ctx, stmt, args)
}

// ListBySession retrieves the newest alerts raised against one session.
func (r *AlertRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.SecurityAlert, error) {
	query := r.alertSelect().
		Where(squirrel.Eq{"session_id": sessionID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list session alerts sql: %w", err)
	}

	return r.queryAlerts(ctx, stmt, args)
}

func (r *AlertRepository) alertSelect() squirrel.SelectBuilder {
	return r.builder.Select(
		"id",
		"user_id",
		"session_id",
		"severity",
		"risk_factors",
		"recommended_actions",
		"combined_confidence",
		"anomaly_score",
		"context",
		"created_at",
	).From("authd.security_alerts")
}

func (r *AlertRepository) queryAlerts(ctx context.Context, stmt string, args []any) ([]domain.SecurityAlert, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]domain.SecurityAlert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}

	return alerts, nil
}

func scanAlert(row pgx.Row) (domain.SecurityAlert, error) {
	var (
		alert    domain.SecurityAlert
		severity string
		factors  []string
		actions  []string
	)
	if err := row.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.SessionID,
		&severity,
		&factors,
		&actions,
		&alert.CombinedConfidence,
		&alert.AnomalyScore,
		&alert.Context,
		&alert.Timestamp,
	); err != nil {
		return domain.SecurityAlert{}, err
	}

	alert.Severity = domain.Severity(severity)
	alert.RiskFactors = make([]domain.RiskFactor, 0, len(factors))
	for _, f := range factors {
		alert.RiskFactors = append(alert.RiskFactors, domain.RiskFactor(f))
	}
	alert.RecommendedActions = make([]domain.ResponseAction, 0, len(actions))
	for _, a := range actions {
		alert.RecommendedActions = append(alert.RecommendedActions, domain.ResponseAction(a))
	}

	return alert, nil
}

func factorStrings(factors []domain.RiskFactor) []string {
	out := make([]string, 0, len(factors))
	for _, f := range factors {
		out = append(out, string(f))
	}
	return out
}

func actionStrings(actions []domain.ResponseAction) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, string(a))
	}
	return out
}
