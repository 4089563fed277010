package marketplace

import (
	"errors"
	"fmt"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/programs"
	"solana-nft-market/internal/storage"
)

// Kind classifies an Error so callers can tell "not allowed" from "too late".
type Kind string

const (
	KindAuthorization     Kind = "AUTHORIZATION"
	KindExpiry            Kind = "EXPIRY"
	KindConfiguration     Kind = "CONFIGURATION"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindAccountNotFound   Kind = "ACCOUNT_NOT_FOUND"
)

// Error is a classified instruction failure. Codes follow the Anchor
// numbering (2xxx constraints, 3xxx accounts, 6xxx program errors).
type Error struct {
	Kind    Kind
	Code    int
	Name    string
	Message string
	Account string // role of the offending account, if any
	Check   string // validation check that failed, if any
	cause   error
}

// Instruction errors. Match with errors.Is; the comparison uses Code.
var (
	ErrConstraintHasOne     = &Error{Kind: KindAuthorization, Code: 2001, Name: "ConstraintHasOne", Message: "a has one constraint was violated"}
	ErrConstraintSigner     = &Error{Kind: KindAuthorization, Code: 2002, Name: "ConstraintSigner", Message: "a signer constraint was violated"}
	ErrConstraintOwner      = &Error{Kind: KindAuthorization, Code: 2004, Name: "ConstraintOwner", Message: "an owner constraint was violated"}
	ErrConstraintSeeds      = &Error{Kind: KindAuthorization, Code: 2006, Name: "ConstraintSeeds", Message: "a seeds constraint was violated"}
	ErrConstraintAssociated = &Error{Kind: KindAuthorization, Code: 2009, Name: "ConstraintAssociated", Message: "an associated constraint was violated"}
	ErrConstraintTokenMint  = &Error{Kind: KindAuthorization, Code: 2014, Name: "ConstraintTokenMint", Message: "a token mint constraint was violated"}
	ErrConstraintTokenOwner = &Error{Kind: KindAuthorization, Code: 2015, Name: "ConstraintTokenOwner", Message: "a token owner constraint was violated"}

	ErrAccountDidNotDeserialize   = &Error{Kind: KindAuthorization, Code: 3003, Name: "AccountDidNotDeserialize", Message: "failed to deserialize the account"}
	ErrAccountOwnedByWrongProgram = &Error{Kind: KindAuthorization, Code: 3007, Name: "AccountOwnedByWrongProgram", Message: "the given account is owned by a different program than expected"}
	ErrAccountNotInitialized      = &Error{Kind: KindAccountNotFound, Code: 3012, Name: "AccountNotInitialized", Message: "the program expected this account to be already initialized"}

	ErrExpired           = &Error{Kind: KindExpiry, Code: 6000, Name: "Expired", Message: "expired"}
	ErrMaxExpiryExceeded = &Error{Kind: KindConfiguration, Code: 6001, Name: "MaxExpiryExceeded", Message: "expiry exceeds the maximum allowed window"}
	ErrInvalidName       = &Error{Kind: KindConfiguration, Code: 6002, Name: "InvalidName", Message: "marketplace name must be 1 to 32 bytes"}
	ErrInvalidPrice      = &Error{Kind: KindConfiguration, Code: 6003, Name: "InvalidPrice", Message: "price must be greater than zero"}
	ErrInvalidExpiry     = &Error{Kind: KindConfiguration, Code: 6004, Name: "InvalidExpiry", Message: "expiry must be zero or in the future"}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds, Code: 6005, Name: "InsufficientFunds", Message: "insufficient funds"}
	ErrInvalidSignature  = &Error{Kind: KindAuthorization, Code: 6006, Name: "InvalidSignature", Message: "bid signature does not verify"}
	ErrAccountInUse      = &Error{Kind: KindConfiguration, Code: 6007, Name: "AccountInUse", Message: "account already in use"}
	ErrPriceMismatch     = &Error{Kind: KindAuthorization, Code: 6008, Name: "PriceMismatch", Message: "signed price does not match the listing price"}
	ErrBidAlreadyUsed    = &Error{Kind: KindAuthorization, Code: 6009, Name: "BidAlreadyUsed", Message: "bid signature already settled a listing"}
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
	if e.Account != "" {
		msg = e.Account + ": " + msg
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) Unwrap() error {
	return e.cause
}

// at returns a copy of e attributed to an account role, with an optional cause.
func (e *Error) at(account string, cause error) *Error {
	cp := *e
	cp.Account = account
	cp.cause = cause
	return &cp
}

// WithCheck returns a copy of e attributed to the named check.
func (e *Error) WithCheck(check string) *Error {
	cp := *e
	cp.Check = check
	return &cp
}

// Classify maps primitive, storage and domain failures to an *Error.
// Errors that already are *Error pass through. Unknown errors return nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var me *Error
	if errors.As(err, &me) {
		return me
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrAccountNotInitialized.at("", err)
	case errors.Is(err, programs.ErrInsufficientFunds):
		return ErrInsufficientFunds.at("", err)
	case errors.Is(err, programs.ErrMintMismatch):
		return ErrConstraintTokenMint.at("", err)
	case errors.Is(err, programs.ErrOwnerMismatch):
		return ErrConstraintOwner.at("", err)
	case errors.Is(err, programs.ErrMissingSignature):
		return ErrConstraintSigner.at("", err)
	case errors.Is(err, programs.ErrAccountInUse):
		return ErrAccountInUse.at("", err)
	case errors.Is(err, programs.ErrInvalidAccountData):
		return ErrAccountDidNotDeserialize.at("", err)
	case errors.Is(err, domain.ErrEscrowExpired):
		return ErrExpired.at("escrow", err)
	case errors.Is(err, domain.ErrMaxExpiryExceeded):
		return ErrMaxExpiryExceeded.at("escrow", err)
	}
	return nil
}

// KindOf returns the classification of err, or "" when it is not an instruction error.
func KindOf(err error) Kind {
	if me := Classify(err); me != nil {
		return me.Kind
	}
	return ""
}
