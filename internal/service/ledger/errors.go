package ledger

import "errors"

// Sentinel errors for the ledger service layer.
var (
	ErrNotFound      = errors.New("send record not found")
	ErrInvalidStatus = errors.New("unknown send status")
)
