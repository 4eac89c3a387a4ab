package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dori/terrain/internal/model"
	"github.com/google/uuid"
)

const interventionColumns = `
	id, status, created_by, assigned, adresse, habitants, proprietaire, mission,
	time_sessions, materials, orders_list, travel_count, travel_cost, total_final,
	start_time, pause_start_time, total_pause_seconds, planned_at, scheduled_time,
	payment_note, created_at, updated_at, completed_at, billed_at, paid_at,
	total_pause_nanos`

// NewIntervention is what the intake feature supplies
type NewIntervention struct {
	CreatedBy   string
	Assigned    string
	Address     model.Address
	Inhabitants json.RawMessage
	Owner       json.RawMessage
	Mission     json.RawMessage
}

// CreateIntervention inserts a new intervention in status OPEN
func (db *DB) CreateIntervention(ctx context.Context, in NewIntervention) (*model.Intervention, error) {
	id := uuid.New().String()
	now := db.now()

	addr, err := encodeJSON(in.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to encode address: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO interventions (id, status, created_by, assigned, adresse, habitants, proprietaire, mission,
		                           time_sessions, materials, orders_list, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '[]', '[]', '[]', ?, ?)
	`, id, model.StatusOpen, in.CreatedBy, in.Assigned, addr,
		rawOrNil(in.Inhabitants), rawOrNil(in.Owner), rawOrNil(in.Mission),
		formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create intervention: %w", err)
	}

	inv, err := db.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	db.hub.publish(model.Event{Kind: model.EventCreate, Intervention: inv})
	return inv, nil
}

// Fetch returns one intervention. A missing document yields ErrNotFound.
func (db *DB) Fetch(ctx context.Context, id string) (*model.Intervention, error) {
	row := db.QueryRowContext(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE id = ?`, id)
	inv, err := db.scanIntervention(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch intervention %s: %w", id, err)
	}
	return inv, nil
}

// List returns interventions in the given statuses, newest first.
// No statuses means all of them.
func (db *DB) List(ctx context.Context, statuses ...model.Status) ([]model.Intervention, error) {
	query := `SELECT ` + interventionColumns + ` FROM interventions`
	var args []interface{}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = "?"
			args = append(args, s)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list interventions: %w", err)
	}
	defer rows.Close()

	var out []model.Intervention
	for rows.Next() {
		inv, err := db.scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// Update merges patch into the stored document. Each list field in the
// patch replaces the stored list as a whole.
func (db *DB) Update(ctx context.Context, id string, patch model.Patch) (*model.Intervention, error) {
	sets, args, err := patchColumns(patch)
	if err != nil {
		return nil, err
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(db.now()), id)

	var inv *model.Intervention
	err = db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE interventions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return fmt.Errorf("failed to update intervention %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		row := tx.QueryRowContext(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE id = ?`, id)
		inv, err = db.scanIntervention(row)
		return err
	})
	if err != nil {
		return nil, err
	}

	db.hub.publish(model.Event{Kind: model.EventUpdate, Intervention: inv})
	return inv, nil
}

// Delete removes an intervention. This is an administrative action; the
// on-site flow never calls it.
func (db *DB) Delete(ctx context.Context, id string) error {
	inv, err := db.Fetch(ctx, id)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM interventions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete intervention %s: %w", id, err)
	}
	db.hub.publish(model.Event{Kind: model.EventDelete, Intervention: inv})
	return nil
}

func patchColumns(p model.Patch) ([]string, []interface{}, error) {
	var sets []string
	var args []interface{}
	add := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	addJSON := func(col string, v interface{}) error {
		s, err := encodeJSON(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", col, err)
		}
		add(col, s)
		return nil
	}

	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, nil, fmt.Errorf("invalid status %q", *p.Status)
		}
		add("status", string(*p.Status))
	}
	if p.TimeSessions != nil {
		if err := addJSON("time_sessions", *p.TimeSessions); err != nil {
			return nil, nil, err
		}
	}
	if p.Materials != nil {
		if err := addJSON("materials", *p.Materials); err != nil {
			return nil, nil, err
		}
	}
	if p.Orders != nil {
		if err := addJSON("orders_list", *p.Orders); err != nil {
			return nil, nil, err
		}
	}
	if p.TravelCount != nil {
		if *p.TravelCount < 0 {
			return nil, nil, fmt.Errorf("travel count must not be negative")
		}
		add("travel_count", *p.TravelCount)
	}
	if p.TravelCost != nil {
		add("travel_cost", *p.TravelCost)
	}
	if p.TotalFinal != nil {
		add("total_final", *p.TotalFinal)
	}
	if p.Clock != nil {
		add("start_time", formatTimePtr(p.Clock.StartTime))
		add("pause_start_time", formatTimePtr(p.Clock.PauseStartTime))
		add("total_pause_seconds", p.Clock.TotalPauseSeconds())
		add("total_pause_nanos", int64(p.Clock.TotalPause))
	}
	if p.PlannedAt != nil {
		add("planned_at", formatTime(*p.PlannedAt))
	}
	if p.ScheduledTime != nil {
		add("scheduled_time", *p.ScheduledTime)
	}
	if p.PaymentNote != nil {
		add("payment_note", *p.PaymentNote)
	}
	if p.CompletedAt != nil {
		add("completed_at", formatTime(*p.CompletedAt))
	}
	if p.BilledAt != nil {
		add("billed_at", formatTime(*p.BilledAt))
	}
	if p.PaidAt != nil {
		add("paid_at", formatTime(*p.PaidAt))
	}

	if len(sets) == 0 {
		return nil, nil, fmt.Errorf("empty update")
	}
	return sets, args, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (db *DB) scanIntervention(s scanner) (*model.Intervention, error) {
	var inv model.Intervention
	var (
		status                                     string
		addr, inhabitants, owner, mission          sql.NullString
		sessions, materials, orders                sql.NullString
		startTime, pauseStart, plannedAt           sql.NullString
		paymentNote, completedAt, billedAt, paidAt sql.NullString
		createdAt, updatedAt                       string
		pauseSeconds, pauseNanos                   int64
	)

	err := s.Scan(
		&inv.ID, &status, &inv.CreatedBy, &inv.Assigned, &addr, &inhabitants, &owner, &mission,
		&sessions, &materials, &orders, &inv.TravelCount, &inv.TravelCost, &inv.TotalFinal,
		&startTime, &pauseStart, &pauseSeconds, &plannedAt, &inv.ScheduledTime,
		&paymentNote, &createdAt, &updatedAt, &completedAt, &billedAt, &paidAt,
		&pauseNanos,
	)
	if err != nil {
		return nil, err
	}

	log := db.logger
	inv.Status = model.Status(status)
	inv.Address = decodeObject[model.Address](log, inv.ID, "adresse", addr)
	inv.Inhabitants = decodeRaw(log, inv.ID, "habitants", inhabitants)
	inv.Owner = decodeRaw(log, inv.ID, "proprietaire", owner)
	inv.Mission = decodeRaw(log, inv.ID, "mission", mission)
	inv.TimeSessions = decodeList[model.TimeSession](log, inv.ID, "time_sessions", sessions)
	inv.Materials = decodeList[model.MaterialLine](log, inv.ID, "materials", materials)
	inv.Orders = decodeList[model.OrderLine](log, inv.ID, "orders_list", orders)
	inv.StartTime = nullTime(log, inv.ID, "start_time", startTime)
	inv.PauseStartTime = nullTime(log, inv.ID, "pause_start_time", pauseStart)
	inv.PlannedAt = nullTime(log, inv.ID, "planned_at", plannedAt)
	inv.CompletedAt = nullTime(log, inv.ID, "completed_at", completedAt)
	inv.BilledAt = nullTime(log, inv.ID, "billed_at", billedAt)
	inv.PaidAt = nullTime(log, inv.ID, "paid_at", paidAt)
	if paymentNote.Valid {
		inv.PaymentNote = paymentNote.String
	}

	// Writers that only know whole seconds leave the nanosecond column
	// behind; the seconds column wins when the two disagree.
	inv.TotalPause = time.Duration(pauseNanos)
	if inv.TotalPauseSeconds() != pauseSeconds {
		inv.TotalPause = time.Duration(pauseSeconds) * time.Second
	}

	if t, err := parseTime(createdAt); err == nil {
		inv.CreatedAt = t
	}
	if t, err := parseTime(updatedAt); err == nil {
		inv.UpdatedAt = t
	}

	return &inv, nil
}
