package store

import (
	"context"

	"github.com/roach88/dotlog/internal/host"
)

// LogStatus summarizes one (host, tag) log.
type LogStatus struct {
	Host          host.ID
	Tag           string
	Count         uint64
	LastIdx       uint64
	LastTimestamp int64
}

// Status returns a summary of every log in the store, ordered by tag then
// host. Used to compare what two hosts hold before exchanging records.
func (s *Store) Status(ctx context.Context) ([]LogStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT host_id, tag, COUNT(*), MAX(idx), MAX(timestamp)
		FROM records
		GROUP BY tag, host_id
		ORDER BY tag COLLATE BINARY ASC, host_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, &StorageError{Op: "status", Err: err}
	}
	defer rows.Close()

	statuses := []LogStatus{}
	for rows.Next() {
		var (
			hostID, tag    string
			count, idx, ts int64
		)
		if err := rows.Scan(&hostID, &tag, &count, &idx, &ts); err != nil {
			return nil, &StorageError{Op: "status: scan", Err: err}
		}
		h, err := host.Parse(hostID)
		if err != nil {
			return nil, &StorageError{Op: "status: parse host", Err: err}
		}
		statuses = append(statuses, LogStatus{
			Host:          h,
			Tag:           tag,
			Count:         uint64(count),
			LastIdx:       uint64(idx),
			LastTimestamp: ts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "status: iterate", Err: err}
	}
	return statuses, nil
}

// Tags returns every distinct tag in the store, sorted.
func (s *Store) Tags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT tag FROM records ORDER BY tag COLLATE BINARY
	`)
	if err != nil {
		return nil, &StorageError{Op: "tags", Err: err}
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, &StorageError{Op: "tags: scan", Err: err}
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "tags: iterate", Err: err}
	}
	return tags, nil
}

// Hosts returns every host that has written tag, sorted.
func (s *Store) Hosts(ctx context.Context, tag string) ([]host.ID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT host_id FROM records WHERE tag = ?
		ORDER BY host_id COLLATE BINARY
	`, tag)
	if err != nil {
		return nil, &StorageError{Op: "hosts", Err: err}
	}
	defer rows.Close()

	hosts := []host.ID{}
	for rows.Next() {
		var hostID string
		if err := rows.Scan(&hostID); err != nil {
			return nil, &StorageError{Op: "hosts: scan", Err: err}
		}
		h, err := host.Parse(hostID)
		if err != nil {
			return nil, &StorageError{Op: "hosts: parse host", Err: err}
		}
		hosts = append(hosts, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "hosts: iterate", Err: err}
	}
	return hosts, nil
}
