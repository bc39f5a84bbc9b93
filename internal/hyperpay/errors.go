package hyperpay

import (
	"errors"
	"fmt"
)

// Error taxonomy for the gateway integration.
var (
	// ErrGateway covers any processor interaction or validation failure.
	ErrGateway = errors.New("hyperpay: gateway error")
	// ErrBadResponse marks a vendor payload that is structurally unusable
	// (missing result code or transaction id). It wraps ErrGateway, so
	// errors.Is(err, ErrGateway) holds for bad responses too.
	ErrBadResponse = fmt.Errorf("%w: unusable response", ErrGateway)
	// ErrInvalidReference marks a merchant reference that does not parse or
	// resolves to no cart.
	ErrInvalidReference = errors.New("hyperpay: invalid merchant reference")
	// ErrDuplicateTransaction marks a replayed vendor transaction id.
	ErrDuplicateTransaction = errors.New("hyperpay: duplicate transaction")
)
