package deployments

import "errors"

// Sentinel errors
var (
	ErrInvalidArgument     = errors.New("popdeploy: invalid constructor argument")
	ErrArgCount            = errors.New("popdeploy: constructor argument count mismatch")
	ErrUnknownSigner       = errors.New("popdeploy: no signer for sender address")
	ErrTransactionReverted = errors.New("popdeploy: deployment transaction reverted")
	ErrNoCode              = errors.New("popdeploy: no code at deployed address")
	ErrRecordNotFound      = errors.New("popdeploy: deployment record not found")
	ErrRecordCorrupted     = errors.New("popdeploy: deployment record corrupted")
)
