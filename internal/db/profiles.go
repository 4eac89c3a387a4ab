package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dori/terrain/internal/model"
)

// Profile returns the pricing profile of a technician.
// When no row exists the default profile is returned with found false.
// Columns left NULL fall back to the profile defaults.
func (db *DB) Profile(ctx context.Context, technician string) (model.TechnicianProfile, bool, error) {
	var (
		rate, fee sql.NullFloat64
		rounding  sql.NullInt64
		gps       sql.NullString
	)
	err := db.QueryRowContext(ctx, `
		SELECT hourly_rate, travel_unit_fee, rounding_minutes, gps
		FROM technician_profiles WHERE technician = ?
	`, technician).Scan(&rate, &fee, &rounding, &gps)

	if errors.Is(err, sql.ErrNoRows) {
		p := model.DefaultProfile()
		p.Technician = technician
		return p, false, nil
	}
	if err != nil {
		return model.TechnicianProfile{}, false, fmt.Errorf("failed to load profile %s: %w", technician, err)
	}

	p := model.TechnicianProfile{
		Technician:      technician,
		RoundingMinutes: model.FallbackRoundingMinutes,
	}
	if rate.Valid {
		p.HourlyRate = rate.Float64
	}
	if fee.Valid {
		p.TravelUnitFee = fee.Float64
	}
	if rounding.Valid {
		p.RoundingMinutes = int(rounding.Int64)
	}
	if gps.Valid {
		p.GPS = model.NavApp(gps.String)
	}
	return p.WithDefaults(), true, nil
}

// SaveProfile creates or replaces a technician profile
func (db *DB) SaveProfile(ctx context.Context, p model.TechnicianProfile) error {
	if p.Technician == "" {
		return fmt.Errorf("profile needs a technician")
	}
	now := formatTime(db.now())
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM technician_profiles WHERE technician = ?`, p.Technician); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO technician_profiles (technician, hourly_rate, travel_unit_fee, rounding_minutes, gps, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.Technician, p.HourlyRate, p.TravelUnitFee, p.RoundingMinutes, string(p.GPS), now)
		if err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		return nil
	})
}
