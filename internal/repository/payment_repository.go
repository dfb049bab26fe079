package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digkill/hydrastudio/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	const query = `
INSERT INTO payments (user_id, provider, package_name, price, credits, status, card_name)
VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''))`
	res, err := r.db.ExecContext(ctx, query, payment.UserID, payment.Provider, payment.Package, payment.Price, payment.Credits, payment.Status, payment.CardName)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	payment.ID = id
	return nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID string) ([]models.Payment, error) {
	const query = `
SELECT id, user_id, provider, package_name, price, credits, status, COALESCE(card_name, ''), created_at, updated_at
FROM payments WHERE user_id = ? ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.Provider, &p.Package, &p.Price, &p.Credits, &p.Status, &p.CardName, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
