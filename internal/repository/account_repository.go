package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/digkill/hydrastudio/internal/identity"
)

const mysqlDuplicateEntry = 1062

// AccountRepository stores credentials for the built-in identity provider.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

var _ identity.AccountStore = (*AccountRepository)(nil)

func (r *AccountRepository) Create(ctx context.Context, account *identity.Account) error {
	const query = `
INSERT INTO accounts (id, email, password_hash, provider)
VALUES (?, ?, NULLIF(?, ''), ?)`
	if _, err := r.db.ExecContext(ctx, query, account.ID, account.Email, account.PasswordHash, account.Provider); err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return identity.ErrEmailTaken
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*identity.Account, error) {
	const query = `
SELECT id, email, COALESCE(password_hash, ''), provider
FROM accounts WHERE email = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*identity.Account, error) {
	const query = `
SELECT id, email, COALESCE(password_hash, ''), provider
FROM accounts WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) scanOne(row *sql.Row) (*identity.Account, error) {
	var a identity.Account
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Provider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}
