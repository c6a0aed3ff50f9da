package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"landed-cost/core/determinism"
	"landed-cost/core/engine"
	"landed-cost/core/types"
	"landed-cost/internal/errors"
)

// Run is a stored calculation
type Run struct {
	ID           string         `json:"id"`
	Label        string         `json:"label"`
	CreatedAt    time.Time      `json:"created_at"`
	BaseCurrency types.Currency `json:"base_currency"`
	Records      int            `json:"records"`
	Warnings     int            `json:"warnings"`
	Incremental  bool           `json:"incremental"`

	// Payload is the full result as JSON
	Payload []byte `json:"-"`
}

// ListFilter filters run listing
type ListFilter struct {
	Label string
	Since time.Time
	Limit int
}

// RecordChange is the change of one record's total between two runs
type RecordChange struct {
	Key      types.CostKey   `json:"key"`
	Currency types.Currency  `json:"currency"`
	Old      decimal.Decimal `json:"old"`
	New      decimal.Decimal `json:"new"`
	Delta    decimal.Decimal `json:"delta"`
	Percent  decimal.Decimal `json:"percent"`
}

// Comparison lists the records whose totals differ between two runs
type Comparison struct {
	OldID   string         `json:"old_id"`
	NewID   string         `json:"new_id"`
	Changes []RecordChange `json:"changes"`
}

// fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SaveRun stores a calculation result under label. The result's run id
// is kept; one is generated when it is empty.
func (d *DB) SaveRun(ctx context.Context, label string, res *engine.Result) (_ *Run, retErr error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "failed to encode result", err)
	}
	run := &Run{
		ID:           res.RunID,
		Label:        label,
		CreatedAt:    res.CalculatedAt,
		BaseCurrency: res.BaseCurrency,
		Records:      len(res.Records),
		Warnings:     len(res.Warnings),
		Incremental:  res.Incremental,
		Payload:      payload,
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "failed to begin transaction", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(id, label, created_at, base_currency, records, warnings, incremental, payload)
		VALUES(?,?,?,?,?,?,?,?)`,
		run.ID, run.Label, run.CreatedAt.UTC().Format(timeLayout), string(run.BaseCurrency),
		run.Records, run.Warnings, run.Incremental, run.Payload); err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "failed to insert run", err).WithContext("run_id", run.ID)
	}
	for _, rec := range res.Records {
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_records(run_id, product, entity, period, currency, total) VALUES(?,?,?,?,?,?)`,
			run.ID, string(rec.Key.Product), string(rec.Key.Entity), string(rec.Key.Period), string(rec.Currency), rec.TotalCost); err != nil {
			return nil, errors.Wrap(errors.TypeInternal, "failed to insert run record", err).WithContext("key", rec.Key.String())
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "failed to commit run", err)
	}
	return run, nil
}

const runColumns = `id, label, created_at, base_currency, records, warnings, incremental, payload`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var (
		r       Run
		created string
		base    string
	)
	if err := row.Scan(&r.ID, &r.Label, &created, &base, &r.Records, &r.Warnings, &r.Incremental, &r.Payload); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = t
	r.BaseCurrency = types.Currency(base)
	return &r, nil
}

// GetRun returns a stored run
func (d *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("run", id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "failed to read run", err).WithContext("run_id", id)
	}
	return r, nil
}

// ListRuns returns runs newest first
func (d *DB) ListRuns(ctx context.Context, filter ListFilter) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any
	if filter.Label != "" {
		query += ` AND label = ?`
		args = append(args, filter.Label)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "failed to list runs", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(errors.TypeInternal, "failed to read run", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRun returns the newest run with label
func (d *DB) LatestRun(ctx context.Context, label string) (*Run, error) {
	runs, err := d.ListRuns(ctx, ListFilter{Label: label, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.NotFound("run with label", label)
	}
	return runs[0], nil
}

// DeleteRun removes a run and its records
func (d *DB) DeleteRun(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM run_records WHERE run_id = ?`, id)
	if err == nil {
		res, err = d.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	}
	if err != nil {
		return errors.Wrap(errors.TypeInternal, "failed to delete run", err).WithContext("run_id", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("run", id)
	}
	return nil
}

type storedTotal struct {
	currency types.Currency
	total    decimal.Decimal
}

func (d *DB) runTotals(ctx context.Context, id string) (map[types.CostKey]storedTotal, error) {
	if _, err := d.GetRun(ctx, id); err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx, `SELECT product, entity, period, currency, total FROM run_records WHERE run_id = ?`, id)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "failed to read run records", err).WithContext("run_id", id)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[types.CostKey]storedTotal)
	for rows.Next() {
		var product, entity, period, cur string
		var total decimal.Decimal
		if err := rows.Scan(&product, &entity, &period, &cur, &total); err != nil {
			return nil, errors.Wrap(errors.TypeInternal, "failed to scan run record", err)
		}
		key := types.CostKey{Product: types.ProductID(product), Entity: types.EntityID(entity), Period: types.Period(period)}
		out[key] = storedTotal{currency: types.Currency(cur), total: total}
	}
	return out, rows.Err()
}

// CompareRuns lists the records whose totals differ between two runs,
// including records present in only one of them
func (d *DB) CompareRuns(ctx context.Context, oldID, newID string) (*Comparison, error) {
	older, err := d.runTotals(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newer, err := d.runTotals(ctx, newID)
	if err != nil {
		return nil, err
	}

	keys := make([]types.CostKey, 0, len(older)+len(newer))
	for k := range older {
		keys = append(keys, k)
	}
	for k := range newer {
		if _, ok := older[k]; !ok {
			keys = append(keys, k)
		}
	}
	determinism.SortCostKeys(keys)

	cmp := &Comparison{OldID: oldID, NewID: newID}
	for _, k := range keys {
		o, n := older[k], newer[k]
		ch := RecordChange{Key: k, Currency: n.currency, Old: o.total, New: n.total}
		if ch.Currency == "" {
			ch.Currency = o.currency
		}
		ch.Delta = n.total.Sub(o.total)
		if ch.Delta.IsZero() {
			continue
		}
		if !o.total.IsZero() {
			ch.Percent = ch.Delta.Div(o.total).Mul(decimal.NewFromInt(100)).Round(4)
		}
		cmp.Changes = append(cmp.Changes, ch)
	}
	return cmp, nil
}
