package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"browsercron/internal/core"
)

const (
	defaultResultLimit = 20
	maxResultLimit     = 200
)

const selectResult = `
	SELECT id, config_id, config_name, config_description, run_trigger, status, start_time, end_time, logs, error
	FROM results`

// ResultFilter narrows a history query. Zero values match everything.
type ResultFilter struct {
	ConfigID string
	Status   core.RunStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

func (f ResultFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.ConfigID != "" {
		clauses = append(clauses, "config_id = ?")
		args = append(args, f.ConfigID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "start_time <= ?")
		args = append(args, formatTime(*f.To))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// SaveResult persists a finished run and its screenshot paths.
func (s *Store) SaveResult(ctx context.Context, result *core.RunResult) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var errMsg any
		if result.Error != nil {
			errMsg = *result.Error
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO results (id, config_id, config_name, config_description, run_trigger, status, start_time, end_time, logs, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, result.ID, result.ConfigID, result.ConfigName, result.ConfigDescription, result.Trigger, result.Status,
			formatTime(result.StartTime), nullableTime(result.EndTime), result.Logs, errMsg); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
		for i, path := range result.Screenshots {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO result_screenshots (result_id, position, path) VALUES (?, ?, ?)
			`, result.ID, i, path); err != nil {
				return fmt.Errorf("insert screenshot %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetResult returns one run result with its screenshot paths.
func (s *Store) GetResult(ctx context.Context, id string) (*core.RunResult, error) {
	result, err := scanResult(s.DB.QueryRowContext(ctx, selectResult+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrResultNotFound
		}
		return nil, err
	}
	if result.Screenshots, err = s.screenshotPaths(ctx, id); err != nil {
		return nil, err
	}
	return result, nil
}

// ListResults returns the results matching filter, newest first, together
// with the total number of matches ignoring limit and offset.
func (s *Store) ListResults(ctx context.Context, filter ResultFilter) ([]*core.RunResult, int, error) {
	where, args := filter.where()

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM results`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultResultLimit
	}
	limit = min(limit, maxResultLimit)
	offset := max(filter.Offset, 0)

	rows, err := s.DB.QueryContext(ctx, selectResult+where+` ORDER BY start_time DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	results := []*core.RunResult{}
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, err
	}
	rows.Close()

	for _, result := range results {
		if result.Screenshots, err = s.screenshotPaths(ctx, result.ID); err != nil {
			return nil, 0, err
		}
	}
	return results, total, nil
}

// CountResults returns how many results a configuration owns.
func (s *Store) CountResults(ctx context.Context, configID string) (int, error) {
	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM results WHERE config_id = ?`, configID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return count, nil
}

// DeleteResult removes one result and its screenshot files.
func (s *Store) DeleteResult(ctx context.Context, id string) error {
	paths, err := s.screenshotPaths(ctx, id)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrResultNotFound
	}
	s.removeScreenshots(paths)
	return nil
}

// DeleteResults removes every result of a configuration and their screenshot
// files, returning how many results were removed.
func (s *Store) DeleteResults(ctx context.Context, configID string) (int, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT p.path FROM result_screenshots p
		JOIN results r ON r.id = p.result_id
		WHERE r.config_id = ?
	`, configID)
	if err != nil {
		return 0, fmt.Errorf("query screenshots: %w", err)
	}
	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, err
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	res, err := s.DB.ExecContext(ctx, `DELETE FROM results WHERE config_id = ?`, configID)
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.removeScreenshots(paths)
	return int(removed), nil
}

func (s *Store) screenshotPaths(ctx context.Context, resultID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT path FROM result_screenshots WHERE result_id = ? ORDER BY position ASC
	`, resultID)
	if err != nil {
		return nil, fmt.Errorf("query screenshots: %w", err)
	}
	defer rows.Close()
	paths := []string{}
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan screenshot: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

func scanResult(row scanner) (*core.RunResult, error) {
	var (
		result    core.RunResult
		trigger   string
		status    string
		startTime string
		endTime   sql.NullString
		errMsg    sql.NullString
	)
	if err := row.Scan(&result.ID, &result.ConfigID, &result.ConfigName, &result.ConfigDescription,
		&trigger, &status, &startTime, &endTime, &result.Logs, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan result: %w", err)
	}
	result.Trigger = core.RunTrigger(trigger)
	result.Status = core.RunStatus(status)
	var err error
	if result.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}
	if endTime.Valid {
		t, err := parseTime(endTime.String)
		if err != nil {
			return nil, err
		}
		result.EndTime = &t
	}
	if errMsg.Valid {
		result.Error = &errMsg.String
	}
	return &result, nil
}
