package users

import (
	"context"
	"database/sql"
	"fmt"

	"payments/internal/payment"
)

const listPaymentsWithUserSQL = `SELECT p.id, p.user_id, u.name, u.email, p.status, p.created_at
FROM payments p
LEFT JOIN users u ON p.user_id = u.id
ORDER BY p.created_at DESC`

// Directory reads user profiles from the users table, which this service
// does not own. It only ever joins against it.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// ListPaymentsWithUser returns every payment with its user's name and email,
// newest first. Payments whose user is gone keep nil profile fields.
func (d *Directory) ListPaymentsWithUser(ctx context.Context) ([]payment.UserPayment, error) {
	rows, err := d.db.QueryContext(ctx, listPaymentsWithUserSQL)
	if err != nil {
		return nil, fmt.Errorf("list payments with user: %w: %w", payment.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	list := []payment.UserPayment{}
	for rows.Next() {
		var (
			up    payment.UserPayment
			name  sql.NullString
			email sql.NullString
		)
		if err := rows.Scan(&up.ID, &up.UserID, &name, &email, &up.Status, &up.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment with user: %w: %w", payment.ErrStoreUnavailable, err)
		}
		if name.Valid {
			up.UserName = &name.String
		}
		if email.Valid {
			up.Email = &email.String
		}
		list = append(list, up)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payments with user: %w: %w", payment.ErrStoreUnavailable, err)
	}
	return list, nil
}
