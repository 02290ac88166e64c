package errdefs

import "errors"

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission was denied")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrConflict         = errors.New("conflict")
	ErrPaymentGateway   = errors.New("payment gateway error")
	ErrStore            = errors.New("store error")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrUnauthenticated, "Unauthenticated"},
	{ErrPermissionDenied, "PermissionDenied"},
	{ErrInvalidArgument, "InvalidArgument"},
	{ErrNotFound, "NotFound"},
	{ErrAlreadyExists, "AlreadyExists"},
	{ErrConflict, "Conflict"},
	{ErrPaymentGateway, "PaymentGatewayError"},
	{ErrStore, "StoreError"},
}

// Kind names the first sentinel err wraps, or "Internal".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
