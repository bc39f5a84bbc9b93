package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/zeitlabs/payments-hyperpay/internal/hyperpay"
)

func TestMapInsertErrUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "transactions_gateway_gateway_transaction_id_key",
	}
	err := mapInsertErr(pgErr)
	require.ErrorIs(t, err, hyperpay.ErrDuplicateTransaction)
	require.Contains(t, err.Error(), "transactions_gateway_gateway_transaction_id_key")
}

func TestMapInsertErrOtherPgError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503"}
	err := mapInsertErr(pgErr)
	require.NotErrorIs(t, err, hyperpay.ErrDuplicateTransaction)
	require.ErrorIs(t, err, pgErr)
}

func TestMapInsertErrNil(t *testing.T) {
	require.NoError(t, mapInsertErr(nil))
}

func TestMapInsertErrPassthrough(t *testing.T) {
	sentinel := errors.New("network down")
	require.ErrorIs(t, mapInsertErr(sentinel), sentinel)
}

func TestErrCartNotSettleable(t *testing.T) {
	err := ErrCartNotSettleable{CartID: "42", Status: CartCancelled}
	require.Contains(t, err.Error(), "42")
	require.Contains(t, err.Error(), "CANCELLED")
}
