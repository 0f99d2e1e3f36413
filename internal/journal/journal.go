// Package journal is the agent's local sqlite spool. It records the samples
// and alerts the agent has seen and buffers position pings that could not be
// delivered, so a network outage loses nothing. The backend stays the system
// of record; the journal only feeds the local status UI, offline reports and
// the store-and-forward flush.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/metrics"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal wraps the spool database.
type Journal struct {
	*sql.DB
}

// Open opens (or creates) the spool at path and applies pending migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	j := &Journal{db}
	if err := j.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	j.syncPendingGauge()
	return j, nil
}

func (j *Journal) migrateUp() error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(j.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// the migrate instance is not closed: closing it would close the
	// underlying DB connection
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// RecordSample upserts one sample. Echoes arriving twice (history load plus
// live push) collapse onto the same row.
func (j *Journal) RecordSample(s sample.Sample) error {
	_, err := j.Exec(`
		INSERT INTO samples (id, device_id, ts, lat, lng, accuracy_m, speed_mps, score, zone)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET score = excluded.score, zone = excluded.zone`,
		s.ID, s.DeviceID, s.Timestamp.UTC(), s.Lat, s.Lng,
		s.AccuracyM, s.SpeedMPS, s.AnomalyScore, zoneName(s.Zone))
	if err != nil {
		return fmt.Errorf("record sample %s: %w", s.ID, err)
	}
	return nil
}

// RecordAlert stores one anomaly alert. A duplicate sample ID is a no-op.
func (j *Journal) RecordAlert(a sample.AnomalyAlert) error {
	_, err := j.Exec(`
		INSERT INTO alerts (sample_id, score, lat, lng, ts) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sample_id) DO NOTHING`,
		a.SampleID, a.Score, a.Lat, a.Lng, a.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("record alert %s: %w", a.SampleID, err)
	}
	return nil
}

// RecentSamples returns the newest samples for a device, ascending by
// timestamp, at most limit rows.
func (j *Journal) RecentSamples(deviceID string, limit int) ([]sample.Sample, error) {
	rows, err := j.Query(`
		SELECT id, device_id, ts, lat, lng, accuracy_m, speed_mps, score, zone
		FROM samples WHERE device_id = ?
		ORDER BY ts DESC LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sample.Sample
	for rows.Next() {
		var s sample.Sample
		var zone sql.NullString
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Timestamp,
			&s.Lat, &s.Lng, &s.AccuracyM, &s.SpeedMPS, &s.AnomalyScore, &zone); err != nil {
			return nil, err
		}
		if zone.Valid && zone.String != "" {
			s.Zone = &sample.ZoneRef{Name: zone.String}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse into ascending order
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// RecentAlerts returns the newest alerts, newest first, at most limit rows.
func (j *Journal) RecentAlerts(limit int) ([]sample.AnomalyAlert, error) {
	rows, err := j.Query(`
		SELECT sample_id, score, lat, lng, ts FROM alerts
		ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sample.AnomalyAlert
	for rows.Next() {
		var a sample.AnomalyAlert
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&a.SampleID, &a.Score, &lat, &lng, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Lat, a.Lng = lat.Float64, lng.Float64
		out = append(out, a)
	}
	return out, rows.Err()
}

// PendingPing is one queued store-and-forward ping.
type PendingPing struct {
	OutboxID  int64
	DeviceID  string
	Fix       sample.Fix
	CreatedAt time.Time
}

// Enqueue buffers a ping that could not be delivered.
func (j *Journal) Enqueue(deviceID string, fix sample.Fix) error {
	_, err := j.Exec(`
		INSERT INTO outbox (device_id, lat, lng, accuracy_m, speed_mps, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		deviceID, fix.Lat, fix.Lng, fix.AccuracyM, fix.SpeedMPS, fix.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("enqueue ping: %w", err)
	}
	j.syncPendingGauge()
	return nil
}

// Pending returns the oldest unflushed pings, at most limit.
func (j *Journal) Pending(limit int) ([]PendingPing, error) {
	rows, err := j.Query(`
		SELECT outbox_id, device_id, lat, lng, accuracy_m, speed_mps, ts, created_at
		FROM outbox WHERE flushed_at IS NULL
		ORDER BY outbox_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingPing
	for rows.Next() {
		var p PendingPing
		if err := rows.Scan(&p.OutboxID, &p.DeviceID,
			&p.Fix.Lat, &p.Fix.Lng, &p.Fix.AccuracyM, &p.Fix.SpeedMPS,
			&p.Fix.Timestamp, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkFlushed marks one queued ping as delivered.
func (j *Journal) MarkFlushed(outboxID int64) error {
	_, err := j.Exec(`UPDATE outbox SET flushed_at = CURRENT_TIMESTAMP WHERE outbox_id = ?`, outboxID)
	if err != nil {
		return fmt.Errorf("mark flushed %d: %w", outboxID, err)
	}
	j.syncPendingGauge()
	return nil
}

// PendingCount returns the number of unflushed pings.
func (j *Journal) PendingCount() (int, error) {
	var n int
	err := j.QueryRow(`SELECT COUNT(*) FROM outbox WHERE flushed_at IS NULL`).Scan(&n)
	return n, err
}

// Prune removes samples, alerts and flushed outbox rows older than the
// cutoff. The journal is a rolling diagnostic window, not an archive.
func (j *Journal) Prune(cutoff time.Time) error {
	for _, q := range []string{
		`DELETE FROM samples WHERE ts < ?`,
		`DELETE FROM alerts WHERE ts < ?`,
		`DELETE FROM outbox WHERE flushed_at IS NOT NULL AND ts < ?`,
	} {
		if _, err := j.Exec(q, cutoff.UTC()); err != nil {
			return fmt.Errorf("prune: %w", err)
		}
	}
	return nil
}

func (j *Journal) syncPendingGauge() {
	if n, err := j.PendingCount(); err == nil {
		metrics.JournalPending.Set(float64(n))
	}
}

func zoneName(z *sample.ZoneRef) any {
	if z == nil || z.Name == "" {
		return nil
	}
	return z.Name
}
