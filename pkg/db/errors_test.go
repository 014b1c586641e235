package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "users_email_key"))
	assert.True(t, IsUniqueViolation(pgErr, ""))
	assert.False(t, IsUniqueViolation(pgErr, "orders_order_number_key"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))

	sqliteErr := errors.New("UNIQUE constraint failed: reviews.product_id, reviews.customer_id")
	assert.True(t, IsUniqueViolation(sqliteErr, "reviews_product_customer_key"))
	assert.False(t, IsUniqueViolation(sqliteErr, "users_email_key"))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsForeignKeyViolation(errors.New("FOREIGN KEY constraint failed")))
	assert.False(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsForeignKeyViolation(nil))
}
