package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/hydrastudio/internal/models"
)

type PackageRepository struct {
	db *sql.DB
}

func NewPackageRepository(db *sql.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

const packageColumns = `id, name, COALESCE(tagline, ''), price, credits, plan, is_popular, is_active, created_at, updated_at`

func (r *PackageRepository) ListActive(ctx context.Context) ([]models.CreditPackage, error) {
	query := `SELECT ` + packageColumns + `
FROM credit_packages
WHERE is_active = 1
ORDER BY credits ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	var packages []models.CreditPackage
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, *pkg)
	}
	return packages, rows.Err()
}

func (r *PackageRepository) GetByID(ctx context.Context, id int64) (*models.CreditPackage, error) {
	query := `SELECT ` + packageColumns + ` FROM credit_packages WHERE id = ?`
	pkg, err := scanPackage(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return pkg, err
}

func (r *PackageRepository) GetByName(ctx context.Context, name string) (*models.CreditPackage, error) {
	query := `SELECT ` + packageColumns + ` FROM credit_packages WHERE name = ?`
	pkg, err := scanPackage(r.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return pkg, err
}

func (r *PackageRepository) Create(ctx context.Context, pkg *models.CreditPackage) (*models.CreditPackage, error) {
	const query = `
INSERT INTO credit_packages (name, tagline, price, credits, plan, is_popular, is_active)
VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, pkg.Name, pkg.Tagline, pkg.Price, pkg.Credits, string(pkg.Plan), pkg.IsPopular, pkg.IsActive)
	if err != nil {
		return nil, fmt.Errorf("create package: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("package last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(row rowScanner) (*models.CreditPackage, error) {
	var pkg models.CreditPackage
	var plan string
	if err := row.Scan(&pkg.ID, &pkg.Name, &pkg.Tagline, &pkg.Price, &pkg.Credits, &plan, &pkg.IsPopular, &pkg.IsActive, &pkg.CreatedAt, &pkg.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan package: %w", err)
	}
	pkg.Plan = models.ParsePlan(plan)
	return &pkg, nil
}
