package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/truthfeed/engine/internal/model"
)

type alertRow struct {
	ID                string         `db:"id"`
	Type              string         `db:"type"`
	Severity          string         `db:"severity"`
	Wallets           pq.StringArray `db:"wallets"`
	Evidence          []byte         `db:"evidence"`
	RecommendedAction string         `db:"recommended_action"`
	Status            string         `db:"status"`
	Reviewer          sql.NullString `db:"reviewer"`
	Notes             sql.NullString `db:"notes"`
	CreatedAt         time.Time      `db:"created_at"`
}

func alertToRow(a model.GamingAlert) (alertRow, error) {
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return alertRow{}, fmt.Errorf("store: marshal alert evidence: %w", err)
	}
	return alertRow{
		ID: a.ID, Type: string(a.Type), Severity: string(a.Severity), Wallets: pq.StringArray(a.Wallets),
		Evidence: evidence, RecommendedAction: a.RecommendedAction, Status: string(a.Status),
		Reviewer:  sql.NullString{String: a.Reviewer, Valid: a.Reviewer != ""},
		Notes:     sql.NullString{String: a.Notes, Valid: a.Notes != ""},
		CreatedAt: a.CreatedAt,
	}, nil
}

func (r alertRow) toModel() (model.GamingAlert, error) {
	var evidence map[string]interface{}
	if len(r.Evidence) > 0 {
		if err := json.Unmarshal(r.Evidence, &evidence); err != nil {
			return model.GamingAlert{}, fmt.Errorf("store: unmarshal alert evidence: %w", err)
		}
	}
	return model.GamingAlert{
		ID: r.ID, Type: model.AlertType(r.Type), Severity: model.Severity(r.Severity), Wallets: []string(r.Wallets),
		Evidence: evidence, RecommendedAction: r.RecommendedAction, Status: model.AlertStatus(r.Status),
		Reviewer: r.Reviewer.String, Notes: r.Notes.String, CreatedAt: r.CreatedAt,
	}, nil
}

type alertRepo struct{ db *sqlx.DB }

func (r *alertRepo) Create(ctx context.Context, a model.GamingAlert) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row, err := alertToRow(a)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO gaming_alerts (id, type, severity, wallets, evidence, recommended_action, status, reviewer, notes, created_at)
		VALUES (:id, :type, :severity, :wallets, :evidence, :recommended_action, :status, :reviewer, :notes, :created_at)
	`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("store: create alert: %w", err)
	}
	return nil
}

// HasRecentUnresolved backs the duplicate-suppression window: true if any
// pending/investigating alert of the same type shares a wallet with
// wallets and was created within `within` of now.
func (r *alertRepo) HasRecentUnresolved(ctx context.Context, typ model.AlertType, wallets []string, within time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT count(*) FROM gaming_alerts
		WHERE type = $1 AND status IN ('pending', 'investigating')
		  AND created_at > now() - make_interval(secs => $2)
		  AND wallets && $3::text[]`,
		string(typ), within.Seconds(), pq.StringArray(wallets))
	if err != nil {
		return false, fmt.Errorf("store: recent unresolved alerts: %w", err)
	}
	return count > 0, nil
}

func (r *alertRepo) Pending(ctx context.Context) ([]model.GamingAlert, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rows []alertRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, type, severity, wallets, evidence, recommended_action, status, reviewer, notes, created_at
		FROM gaming_alerts WHERE status = 'pending' ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: pending alerts: %w", err)
	}
	out := make([]model.GamingAlert, len(rows))
	for i, row := range rows {
		a, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func (r *alertRepo) UpdateStatus(ctx context.Context, id string, status model.AlertStatus, reviewer, notes string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE gaming_alerts SET status = $2, reviewer = $3, notes = $4 WHERE id = $1`,
		id, string(status), reviewer, notes)
	if err != nil {
		return fmt.Errorf("store: update alert status: %w", err)
	}
	return nil
}

func (r *alertRepo) Get(ctx context.Context, id string) (model.GamingAlert, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var row alertRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, type, severity, wallets, evidence, recommended_action, status, reviewer, notes, created_at
		FROM gaming_alerts WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return model.GamingAlert{}, false, nil
	}
	if err != nil {
		return model.GamingAlert{}, false, fmt.Errorf("store: get alert: %w", err)
	}
	a, err := row.toModel()
	return a, err == nil, err
}
