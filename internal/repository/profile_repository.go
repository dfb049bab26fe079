package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/hydrastudio/internal/models"
)

// ErrProfileNotFound is the "no rows" condition for a profile lookup.
var ErrProfileNotFound = errors.New("profile not found")

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	const query = `
SELECT id, email, credits, plan, created_at, updated_at
FROM profiles WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var p models.Profile
	var plan string
	if err := row.Scan(&p.ID, &p.Email, &p.Credits, &plan, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.Plan = models.ParsePlan(plan)
	return &p, nil
}

func (r *ProfileRepository) Create(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	const query = `
INSERT INTO profiles (id, email, credits, plan)
VALUES (?, ?, ?, ?)`
	if profile.Plan == "" {
		profile.Plan = models.PlanFree
	}
	if _, err := r.db.ExecContext(ctx, query, profile.ID, profile.Email, profile.Credits, string(profile.Plan)); err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return r.FindByID(ctx, profile.ID)
}

// SetCredits overwrites the balance unconditionally.
func (r *ProfileRepository) SetCredits(ctx context.Context, id string, credits int) error {
	const query = `UPDATE profiles SET credits = ?, updated_at = NOW() WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, credits, id)
	if err != nil {
		return fmt.Errorf("update credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credits rows affected: %w", err)
	}
	if affected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// SwapCredits writes next only while the stored balance still equals expected.
func (r *ProfileRepository) SwapCredits(ctx context.Context, id string, expected, next int) (bool, error) {
	const query = `
UPDATE profiles SET credits = ?, updated_at = NOW()
WHERE id = ? AND credits = ?`
	res, err := r.db.ExecContext(ctx, query, next, id, expected)
	if err != nil {
		return false, fmt.Errorf("swap credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap credits rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *ProfileRepository) UpdateEmail(ctx context.Context, id, email string) error {
	const query = `UPDATE profiles SET email = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, email, id); err != nil {
		return fmt.Errorf("update profile email: %w", err)
	}
	return nil
}
