package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"browsercron/internal/core"
)

const selectConfig = `SELECT id, name, description, active, created_at, updated_at FROM configs`

// SaveConfig inserts or replaces a configuration. Steps and schedule are
// replaced wholesale.
func (s *Store) SaveConfig(ctx context.Context, cfg *core.Configuration) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO configs (id, name, description, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				active = excluded.active,
				updated_at = excluded.updated_at
		`, cfg.ID, cfg.Name, cfg.Description, boolToInt(cfg.Active),
			formatTime(cfg.CreatedAt), formatTime(cfg.UpdatedAt)); err != nil {
			return fmt.Errorf("upsert config: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM config_steps WHERE config_id = ?`, cfg.ID); err != nil {
			return fmt.Errorf("clear steps: %w", err)
		}
		for i, step := range cfg.Steps {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO config_steps (config_id, step_order, type, selector, value, wait_seconds, capture_screenshot, capture_selector)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, cfg.ID, i, step.Type, nullableString(step.Selector), nullableString(step.Value),
				step.WaitSeconds, boolToInt(step.CaptureScreenshot), nullableString(step.CaptureSelector)); err != nil {
				return fmt.Errorf("insert step %d: %w", i, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM config_schedules WHERE config_id = ?`, cfg.ID); err != nil {
			return fmt.Errorf("clear schedule: %w", err)
		}
		if sched := cfg.Schedule; sched != nil {
			var interval any
			if sched.IntervalMinutes != 0 {
				interval = sched.IntervalMinutes
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO config_schedules (config_id, type, run_once_at, interval_minutes, cron_expression)
				VALUES (?, ?, ?, ?, ?)
			`, cfg.ID, sched.Type, nullableString(sched.RunOnceAt), interval, nullableString(sched.CronExpression)); err != nil {
				return fmt.Errorf("insert schedule: %w", err)
			}
		}
		return nil
	})
}

// GetConfig returns the configuration with its steps and schedule.
func (s *Store) GetConfig(ctx context.Context, id string) (*core.Configuration, error) {
	cfg, err := scanConfig(s.DB.QueryRowContext(ctx, selectConfig+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrConfigNotFound
		}
		return nil, err
	}
	if err := s.loadChildren(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListConfigs returns every configuration, most recently created first.
func (s *Store) ListConfigs(ctx context.Context) ([]*core.Configuration, error) {
	return s.listConfigs(ctx, selectConfig+` ORDER BY created_at DESC`)
}

// ListActiveConfigs returns the configurations whose active flag is set.
func (s *Store) ListActiveConfigs(ctx context.Context) ([]*core.Configuration, error) {
	return s.listConfigs(ctx, selectConfig+` WHERE active = 1 ORDER BY created_at ASC`)
}

func (s *Store) listConfigs(ctx context.Context, query string, args ...any) ([]*core.Configuration, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query configs: %w", err)
	}
	var configs []*core.Configuration
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Children are loaded after the cursor is closed; the pool holds one connection.
	for _, cfg := range configs {
		if err := s.loadChildren(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return configs, nil
}

// DeleteConfig removes the configuration, its steps and its schedule.
func (s *Store) DeleteConfig(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrConfigNotFound
	}
	return nil
}

func (s *Store) loadChildren(ctx context.Context, cfg *core.Configuration) error {
	steps, err := s.loadSteps(ctx, cfg.ID)
	if err != nil {
		return err
	}
	cfg.Steps = steps
	sched, err := s.loadSchedule(ctx, cfg.ID)
	if err != nil {
		return err
	}
	cfg.Schedule = sched
	return nil
}

func (s *Store) loadSteps(ctx context.Context, configID string) ([]core.Step, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT step_order, type, selector, value, wait_seconds, capture_screenshot, capture_selector
		FROM config_steps
		WHERE config_id = ?
		ORDER BY step_order ASC
	`, configID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()
	steps := []core.Step{}
	for rows.Next() {
		var (
			step            core.Step
			stepType        string
			selector, value sql.NullString
			captureSelector sql.NullString
			capture         int
		)
		if err := rows.Scan(&step.Order, &stepType, &selector, &value, &step.WaitSeconds, &capture, &captureSelector); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.Type = core.StepType(stepType)
		step.Selector = selector.String
		step.Value = value.String
		step.CaptureScreenshot = capture != 0
		step.CaptureSelector = captureSelector.String
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *Store) loadSchedule(ctx context.Context, configID string) (*core.Schedule, error) {
	var (
		schedType string
		runOnceAt sql.NullString
		interval  sql.NullInt64
		cronExpr  sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT type, run_once_at, interval_minutes, cron_expression
		FROM config_schedules WHERE config_id = ?
	`, configID).Scan(&schedType, &runOnceAt, &interval, &cronExpr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return &core.Schedule{
		Type:            core.ScheduleType(schedType),
		RunOnceAt:       runOnceAt.String,
		IntervalMinutes: int(interval.Int64),
		CronExpression:  cronExpr.String,
	}, nil
}

func scanConfig(row scanner) (*core.Configuration, error) {
	var (
		cfg                  core.Configuration
		active               int
		createdAt, updatedAt string
	)
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Description, &active, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan config: %w", err)
	}
	cfg.Active = active != 0
	var err error
	if cfg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if cfg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &cfg, nil
}
