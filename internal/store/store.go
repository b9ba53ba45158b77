// Package store persists normalized events and detector alerts in Postgres.
// It is the only shared mutable state in the pipeline: the collector appends
// events, every detector reads its own slice, and the alert sink writes with
// conflict suppression on the (timestamp, rule, source_ip) identity.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sentra/siem/internal/event"
)

// DefaultReadLimit bounds a single detector fetch.
const DefaultReadLimit = 5000

// Store wraps a Postgres connection for event/alert persistence.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// Open connects to Postgres and verifies the connection.
func Open(dbURL string, opTimeout time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	return &Store{db: db, timeout: opTimeout}, nil
}

// New wraps an existing connection. Used by tests with sqlmock-style fakes.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	return &Store{db: db, timeout: opTimeout}
}

// Close releases the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies database reachability, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the events and alerts tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const eventsSQL = `
	CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		source_ip TEXT,
		source_port INT,
		destination_ip TEXT,
		destination_port INT,
		username TEXT,
		host TEXT,
		category TEXT[] NOT NULL,
		outcome TEXT,
		severity INT,
		action TEXT,
		reason TEXT,
		http_method TEXT,
		http_status INT,
		url_path TEXT,
		url_full TEXT,
		user_agent TEXT,
		attack_type TEXT,
		attack_confidence TEXT,
		labels TEXT[],
		message TEXT,
		protocol TEXT,
		file_name TEXT,
		file_path TEXT,
		raw JSONB
	)`
	if _, err := s.db.ExecContext(ctx, eventsSQL); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}

	const alertsSQL = `
	CREATE TABLE IF NOT EXISTS alerts (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		rule TEXT NOT NULL,
		user_name TEXT,
		source_ip TEXT,
		destination_ip TEXT,
		attempt_count INT,
		severity TEXT,
		technique TEXT,
		score DOUBLE PRECISION,
		evidence TEXT,
		raw JSONB,
		UNIQUE (timestamp, rule, source_ip)
	)`
	if _, err := s.db.ExecContext(ctx, alertsSQL); err != nil {
		return fmt.Errorf("create alerts table: %w", err)
	}

	const indexSQL = `CREATE INDEX IF NOT EXISTS events_timestamp_idx ON events (timestamp)`
	if _, err := s.db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("create events index: %w", err)
	}
	return nil
}

// Append writes one event. Duplicate timestamps are allowed; events are never
// deduplicated.
func (s *Store) Append(ctx context.Context, ev *event.Event) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rawJSON, err := marshalRaw(ev.Raw)
	if err != nil {
		return 0, fmt.Errorf("serialize raw payload: %w", err)
	}

	const insertSQL = `
	INSERT INTO events (
		timestamp, source_ip, source_port, destination_ip, destination_port,
		username, host, category, outcome, severity, action, reason,
		http_method, http_status, url_path, url_full, user_agent,
		attack_type, attack_confidence, labels, message, protocol,
		file_name, file_path, raw
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24, $25
	) RETURNING id`

	var id int64
	err = s.db.QueryRowContext(ctx, insertSQL,
		ev.Timestamp.UTC(),
		nullString(ev.SourceIP),
		nullInt(ev.SourcePort),
		nullString(ev.DestinationIP),
		nullInt(ev.DestinationPort),
		nullString(ev.Username),
		nullString(ev.Host),
		pq.Array([]string(ev.Category)),
		nullString(ev.Outcome),
		nullInt(ev.Severity),
		nullString(ev.Action),
		nullString(ev.Reason),
		nullString(ev.HTTPMethod),
		nullInt(ev.HTTPStatus),
		nullString(ev.URLPath),
		nullString(ev.URLFull),
		nullString(ev.UserAgent),
		nullString(ev.AttackType),
		nullString(ev.AttackConfidence),
		pq.Array(ev.Labels),
		nullString(ev.Message),
		nullString(ev.Protocol),
		nullString(ev.FileName),
		nullString(ev.FilePath),
		rawJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}

// Filter narrows a Read. The zero value reads the newest DefaultReadLimit
// events ascending.
type Filter struct {
	// Since is an exclusive lower bound on timestamp. Nil reads all history.
	Since *time.Time
	// Categories restricts to events whose category set intersects this list.
	Categories []string
	// Limit caps the row count; zero means DefaultReadLimit.
	Limit int
	// Descending reverses the ordering (reporter-style reads).
	Descending bool
}

// Read fetches events matching the filter, ordered by timestamp.
func (s *Store) Read(ctx context.Context, f Filter) ([]event.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
	SELECT id, timestamp, source_ip, source_port, destination_ip,
	       destination_port, username, host, category, outcome, severity,
	       action, reason, http_method, http_status, url_path, url_full,
	       user_agent, attack_type, attack_confidence, labels, message,
	       protocol, file_name, file_path, raw
	FROM events`

	var (
		where []string
		args  []interface{}
	)
	if f.Since != nil {
		args = append(args, f.Since.UTC())
		where = append(where, fmt.Sprintf("timestamp > $%d", len(args)))
	}
	if len(f.Categories) > 0 {
		args = append(args, pq.Array(f.Categories))
		where = append(where, fmt.Sprintf("category && $%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}

	order := " ORDER BY timestamp ASC"
	if f.Descending {
		order = " ORDER BY timestamp DESC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	args = append(args, limit)
	query += order + fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(rows *sql.Rows) (event.Event, error) {
	var (
		ev       event.Event
		srcIP    sql.NullString
		srcPort  sql.NullInt64
		dstIP    sql.NullString
		dstPort  sql.NullInt64
		username sql.NullString
		host     sql.NullString
		category pq.StringArray
		outcome  sql.NullString
		severity sql.NullInt64
		action   sql.NullString
		reason   sql.NullString
		method   sql.NullString
		status   sql.NullInt64
		urlPath  sql.NullString
		urlFull  sql.NullString
		ua       sql.NullString
		atkType  sql.NullString
		atkConf  sql.NullString
		labels   pq.StringArray
		message  sql.NullString
		protocol sql.NullString
		fileName sql.NullString
		filePath sql.NullString
		rawJSON  []byte
	)
	err := rows.Scan(
		&ev.ID, &ev.Timestamp, &srcIP, &srcPort, &dstIP, &dstPort,
		&username, &host, &category, &outcome, &severity, &action, &reason,
		&method, &status, &urlPath, &urlFull, &ua, &atkType, &atkConf,
		&labels, &message, &protocol, &fileName, &filePath, &rawJSON,
	)
	if err != nil {
		return ev, fmt.Errorf("scan event row: %w", err)
	}
	ev.Timestamp = ev.Timestamp.UTC()
	ev.SourceIP = srcIP.String
	ev.SourcePort = int(srcPort.Int64)
	ev.DestinationIP = dstIP.String
	ev.DestinationPort = int(dstPort.Int64)
	ev.Username = username.String
	ev.Host = host.String
	ev.Category = event.Categories(category)
	ev.Outcome = outcome.String
	ev.Severity = int(severity.Int64)
	ev.Action = action.String
	ev.Reason = reason.String
	ev.HTTPMethod = method.String
	ev.HTTPStatus = int(status.Int64)
	ev.URLPath = urlPath.String
	ev.URLFull = urlFull.String
	ev.UserAgent = ua.String
	ev.AttackType = atkType.String
	ev.AttackConfidence = atkConf.String
	ev.Labels = []string(labels)
	ev.Message = message.String
	ev.Protocol = protocol.String
	ev.FileName = fileName.String
	ev.FilePath = filePath.String
	if len(rawJSON) > 0 {
		_ = json.Unmarshal(rawJSON, &ev.Raw)
	}
	return ev, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func marshalRaw(raw map[string]interface{}) ([]byte, error) {
	if raw == nil {
		return nil, nil
	}
	return json.Marshal(raw)
}
