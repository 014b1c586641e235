package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraintName is set the violated constraint must match it. Postgres errors are
// matched by SQLSTATE; other drivers (sqlite in tests) by message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if constraintName == "" {
		return true
	}
	return strings.Contains(msg, constraintName) || strings.Contains(msg, constraintColumns(constraintName))
}

// constraintColumns maps a named index to the sqlite message form, which lists
// columns rather than the index name.
func constraintColumns(constraintName string) string {
	switch constraintName {
	case "users_email_key":
		return "users.email"
	case "orders_order_number_key":
		return "orders.order_number"
	case "reviews_product_customer_key":
		return "reviews.product_id, reviews.customer_id"
	case "carts_customer_id_key":
		return "carts.customer_id"
	case "wishlists_customer_id_key":
		return "wishlists.customer_id"
	case "wishlists_share_token_key":
		return "wishlists.share_token"
	}
	return constraintName
}

// IsForeignKeyViolation reports whether err is a foreign key constraint violation.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
