package programs

import "errors"

// Primitive failures. Callers classify these into marketplace errors.
var (
	// ErrInsufficientFunds is returned when a debit exceeds the account balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrOwnerMismatch is returned when an account is not owned by the expected program or authority.
	ErrOwnerMismatch = errors.New("owner does not match")

	// ErrMintMismatch is returned when token accounts reference different mints.
	ErrMintMismatch = errors.New("account not associated with this mint")

	// ErrMissingSignature is returned when an authority did not sign.
	ErrMissingSignature = errors.New("missing required signature")

	// ErrAccountInUse is returned when creating an account at an occupied address.
	ErrAccountInUse = errors.New("account already in use")

	// ErrNonEmptyAccount is returned when closing a token account that still holds tokens.
	ErrNonEmptyAccount = errors.New("non-native account can only be closed if its balance is zero")

	// ErrInvalidAccountData is returned when account bytes do not decode as the expected record.
	ErrInvalidAccountData = errors.New("invalid account data")

	// ErrLamportOverflow is returned when a credit would overflow a balance.
	ErrLamportOverflow = errors.New("lamport balance overflow")
)
