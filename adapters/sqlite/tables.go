package sqlite

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"landed-cost/core/currency"
	"landed-cost/core/lookup"
	"landed-cost/core/model"
	"landed-cost/core/types"
	"landed-cost/internal/errors"
	"landed-cost/internal/logging"
)

// LoadInto merges every table row into the model's cost and rate
// tables. Rows overwrite entries loaded from definition files.
func (d *DB) LoadInto(ctx context.Context, m *model.Model) error {
	costs, rates, err := d.Tables(ctx)
	if err != nil {
		return err
	}
	m.Costs.Merge(costs)
	m.Rates.Merge(rates)
	m.Sources = append(m.Sources, "sqlite:"+d.path)

	c, l, v := costs.Len()
	logging.Debug("sqlite tables loaded",
		zap.String("path", d.path),
		zap.Int("costs", c),
		zap.Int("labor", l),
		zap.Int("volumes", v),
		zap.Int("rates", rates.Len()))
	return nil
}

// Tables reads the period tables
func (d *DB) Tables(ctx context.Context) (*lookup.Table, *currency.Table, error) {
	costs := lookup.NewTable()
	rates := currency.NewTable()

	err := d.each(ctx, `SELECT item, entity, period, unit_cost, currency FROM period_costs`, func(rows *sql.Rows) error {
		var item, entity, period, cur string
		var unit decimal.Decimal
		if err := rows.Scan(&item, &entity, &period, &unit, &cur); err != nil {
			return err
		}
		costs.SetCost(types.ProductID(item), types.EntityID(entity), types.Period(period),
			lookup.UnitCost{Unit: unit, Currency: types.Currency(cur)})
		return nil
	})
	if err == nil {
		err = d.each(ctx, `SELECT product, entity, period, hours, rate, currency FROM labor`, func(rows *sql.Rows) error {
			var product, entity, period, cur string
			var hours, rate decimal.Decimal
			if err := rows.Scan(&product, &entity, &period, &hours, &rate, &cur); err != nil {
				return err
			}
			costs.SetLabor(types.ProductID(product), types.EntityID(entity), types.Period(period),
				lookup.Labor{Hours: hours, Rate: rate, Currency: types.Currency(cur)})
			return nil
		})
	}
	if err == nil {
		err = d.each(ctx, `SELECT product, entity, period, units FROM volumes`, func(rows *sql.Rows) error {
			var product, entity, period string
			var units decimal.Decimal
			if err := rows.Scan(&product, &entity, &period, &units); err != nil {
				return err
			}
			costs.SetVolume(types.ProductID(product), types.EntityID(entity), types.Period(period), units)
			return nil
		})
	}
	if err == nil {
		err = d.each(ctx, `SELECT from_currency, to_currency, period, rate FROM rates`, func(rows *sql.Rows) error {
			var from, to, period string
			var rate decimal.Decimal
			if err := rows.Scan(&from, &to, &period, &rate); err != nil {
				return err
			}
			rates.Set(types.Currency(from), types.Currency(to), types.Period(period), rate)
			return nil
		})
	}
	if err != nil {
		return nil, nil, errors.Wrap(errors.TypeParsing, "failed to read cost tables", err).WithContext("path", d.path)
	}
	return costs, rates, nil
}

func (d *DB) each(ctx context.Context, query string, fn func(*sql.Rows) error) error {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

const (
	upsertCost = `INSERT INTO period_costs(item, entity, period, unit_cost, currency) VALUES(?,?,?,?,?)
		ON CONFLICT(item, entity, period) DO UPDATE SET unit_cost=excluded.unit_cost, currency=excluded.currency`
	upsertLabor = `INSERT INTO labor(product, entity, period, hours, rate, currency) VALUES(?,?,?,?,?,?)
		ON CONFLICT(product, entity, period) DO UPDATE SET hours=excluded.hours, rate=excluded.rate, currency=excluded.currency`
	upsertVolume = `INSERT INTO volumes(product, entity, period, units) VALUES(?,?,?,?)
		ON CONFLICT(product, entity, period) DO UPDATE SET units=excluded.units`
	upsertRate = `INSERT INTO rates(from_currency, to_currency, period, rate) VALUES(?,?,?,?)
		ON CONFLICT(from_currency, to_currency, period) DO UPDATE SET rate=excluded.rate`
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PutCost upserts a period unit cost
func (d *DB) PutCost(ctx context.Context, item types.ProductID, entity types.EntityID, period types.Period, c lookup.UnitCost) error {
	return d.exec(ctx, d.db, upsertCost, string(item), string(entity), string(period), c.Unit, string(c.Currency))
}

// PutLabor upserts labor content
func (d *DB) PutLabor(ctx context.Context, product types.ProductID, entity types.EntityID, period types.Period, l lookup.Labor) error {
	return d.exec(ctx, d.db, upsertLabor, string(product), string(entity), string(period), l.Hours, l.Rate, string(l.Currency))
}

// PutVolume upserts a production volume
func (d *DB) PutVolume(ctx context.Context, product types.ProductID, entity types.EntityID, period types.Period, units decimal.Decimal) error {
	return d.exec(ctx, d.db, upsertVolume, string(product), string(entity), string(period), units)
}

// PutRate upserts an exchange rate
func (d *DB) PutRate(ctx context.Context, from, to types.Currency, period types.Period, rate decimal.Decimal) error {
	return d.exec(ctx, d.db, upsertRate, string(from), string(to), string(period), rate)
}

// ImportStats counts the rows written by Import
type ImportStats struct {
	Costs   int
	Labor   int
	Volumes int
	Rates   int
}

// Total returns the number of rows written
func (s ImportStats) Total() int {
	return s.Costs + s.Labor + s.Volumes + s.Rates
}

// Import upserts every entry of the tables in one transaction. Either
// table may be nil.
func (d *DB) Import(ctx context.Context, costs *lookup.Table, rates *currency.Table) (stats ImportStats, retErr error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, errors.Wrap(errors.TypeInternal, "failed to begin import", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if costs != nil {
		err = costs.EachCost(func(item types.ProductID, entity types.EntityID, period types.Period, c lookup.UnitCost) error {
			stats.Costs++
			return d.exec(ctx, tx, upsertCost, string(item), string(entity), string(period), c.Unit, string(c.Currency))
		})
		if err == nil {
			err = costs.EachLabor(func(product types.ProductID, entity types.EntityID, period types.Period, l lookup.Labor) error {
				stats.Labor++
				return d.exec(ctx, tx, upsertLabor, string(product), string(entity), string(period), l.Hours, l.Rate, string(l.Currency))
			})
		}
		if err == nil {
			err = costs.EachVolume(func(product types.ProductID, entity types.EntityID, period types.Period, units decimal.Decimal) error {
				stats.Volumes++
				return d.exec(ctx, tx, upsertVolume, string(product), string(entity), string(period), units)
			})
		}
		if err != nil {
			return stats, err
		}
	}
	if rates != nil {
		err = rates.Each(func(from, to types.Currency, period types.Period, rate decimal.Decimal) error {
			stats.Rates++
			return d.exec(ctx, tx, upsertRate, string(from), string(to), string(period), rate)
		})
		if err != nil {
			return stats, err
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, errors.Wrap(errors.TypeInternal, "failed to commit import", err)
	}
	logging.Info("tables imported",
		zap.String("path", d.path),
		zap.Int("costs", stats.Costs),
		zap.Int("labor", stats.Labor),
		zap.Int("volumes", stats.Volumes),
		zap.Int("rates", stats.Rates))
	return stats, nil
}

func (d *DB) exec(ctx context.Context, ex execer, query string, args ...any) error {
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.TypeInternal, "sqlite write failed", err).WithContext("path", d.path)
	}
	return nil
}
