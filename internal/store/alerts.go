package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentra/siem/internal/event"
)

// AlertBatchSize is how many alerts go into one insert batch.
const AlertBatchSize = 20

// UpsertAlerts inserts alerts in batches with conflict suppression on the
// (timestamp, rule, source_ip) identity. A batch failure aborts only that
// batch; later batches still run. Returns how many rows were actually
// inserted (conflicts excluded) and the first batch error, if any.
func (s *Store) UpsertAlerts(ctx context.Context, alerts []event.Alert) (int64, error) {
	if len(alerts) == 0 {
		return 0, nil
	}

	const insertSQL = `
	INSERT INTO alerts (
		timestamp, rule, user_name, source_ip, destination_ip,
		attempt_count, severity, technique, score, evidence, raw
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (timestamp, rule, source_ip) DO NOTHING`

	var (
		inserted int64
		firstErr error
	)
	for start := 0; start < len(alerts); start += AlertBatchSize {
		end := start + AlertBatchSize
		if end > len(alerts) {
			end = len(alerts)
		}
		n, err := s.insertAlertBatch(ctx, insertSQL, alerts[start:end])
		inserted += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return inserted, firstErr
}

func (s *Store) insertAlertBatch(ctx context.Context, insertSQL string, batch []event.Alert) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin alert batch: %w", err)
	}

	var inserted int64
	for _, a := range batch {
		rawJSON, err := json.Marshal(a.Raw)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("serialize alert raw: %w", err)
		}
		count := a.AttemptCount
		if count < 1 {
			count = 1
		}
		res, err := tx.ExecContext(ctx, insertSQL,
			a.Timestamp.UTC(),
			a.Rule,
			nullString(a.UserName),
			nullString(a.SourceIP),
			nullString(a.DestinationIP),
			count,
			a.Severity,
			a.Technique,
			a.Score,
			nullString(a.Evidence),
			rawJSON,
		)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("insert alert %q: %w", a.Rule, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit alert batch: %w", err)
	}
	return inserted, nil
}

// RecentAlerts returns the newest n alerts, most recent first.
func (s *Store) RecentAlerts(ctx context.Context, n int) ([]event.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if n <= 0 {
		n = 50
	}
	const query = `
	SELECT timestamp, rule, user_name, source_ip, destination_ip,
	       attempt_count, severity, technique, score, evidence, raw
	FROM alerts
	ORDER BY timestamp DESC
	LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []event.Alert
	for rows.Next() {
		var (
			a        event.Alert
			userName sql.NullString
			srcIP    sql.NullString
			dstIP    sql.NullString
			count    sql.NullInt64
			severity sql.NullString
			tech     sql.NullString
			score    sql.NullFloat64
			evidence sql.NullString
			rawJSON  []byte
		)
		if err := rows.Scan(&a.Timestamp, &a.Rule, &userName, &srcIP, &dstIP,
			&count, &severity, &tech, &score, &evidence, &rawJSON); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		a.Timestamp = a.Timestamp.UTC()
		a.UserName = userName.String
		a.SourceIP = srcIP.String
		a.DestinationIP = dstIP.String
		a.AttemptCount = int(count.Int64)
		a.Severity = severity.String
		a.Technique = tech.String
		a.Score = score.Float64
		a.Evidence = evidence.String
		if len(rawJSON) > 0 {
			_ = json.Unmarshal(rawJSON, &a.Raw)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// OldestEventTime returns the earliest event timestamp, used by full scans
// for progress logging. Returns zero time when the table is empty.
func (s *Store) OldestEventTime(ctx context.Context) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var ts sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT MIN(timestamp) FROM events`).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("query oldest event: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time.UTC(), nil
}
