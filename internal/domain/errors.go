package domain

import "errors"

// ErrorKind groups ledger failures for callers that map them onto transport
// status codes.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindStateConflict ErrorKind = "state_conflict"
	KindAuthorization ErrorKind = "authorization"
	KindResource      ErrorKind = "resource"
	KindNotFound      ErrorKind = "not_found"
	KindInternal      ErrorKind = "internal"
)

// LedgerError is a typed ledger failure. Sentinels are compared with
// errors.Is; call sites wrap them with context via fmt.Errorf("%w: ...").
type LedgerError struct {
	Code string
	Kind ErrorKind
	msg  string
}

func (e *LedgerError) Error() string { return e.msg }

func newLedgerError(code string, kind ErrorKind, msg string) *LedgerError {
	return &LedgerError{Code: code, Kind: kind, msg: msg}
}

var (
	ErrInvalidParameters = newLedgerError("InvalidParameters", KindValidation, "invalid parameters")
	ErrInvalidOption     = newLedgerError("InvalidOption", KindValidation, "invalid option")
	ErrInvalidPrice      = newLedgerError("InvalidPrice", KindValidation, "invalid price")

	ErrProjectInactive = newLedgerError("ProjectInactive", KindStateConflict, "project inactive")
	ErrProjectExpired  = newLedgerError("ProjectExpired", KindStateConflict, "project expired")
	ErrSoldOut         = newLedgerError("SoldOut", KindStateConflict, "sold out")
	ErrOrderInactive   = newLedgerError("OrderInactive", KindStateConflict, "order inactive")
	ErrAlreadyListed   = newLedgerError("AlreadyListed", KindStateConflict, "ticket already listed")
	ErrAlreadySettled  = newLedgerError("AlreadySettled", KindStateConflict, "project already settled")
	ErrAlreadyClaimed  = newLedgerError("AlreadyClaimed", KindStateConflict, "faucet already claimed")

	ErrNotOwner     = newLedgerError("NotOwner", KindAuthorization, "not owner")
	ErrUnauthorized = newLedgerError("Unauthorized", KindAuthorization, "unauthorized")
	ErrSelfTrade    = newLedgerError("SelfTrade", KindAuthorization, "cannot buy own listing")

	ErrInsufficientFunds = newLedgerError("InsufficientFunds", KindResource, "insufficient funds")
	ErrNotFound          = newLedgerError("NotFound", KindNotFound, "not found")

	// ErrLedgerHalted means the journal may hold a command that was not
	// applied. Writes stay refused until the ledger is rebuilt by replay.
	ErrLedgerHalted = newLedgerError("LedgerHalted", KindInternal, "ledger halted: journal state unknown")
)

// Infrastructure errors. These never come out of the ledger core.
var (
	ErrRateLimited     = errors.New("rate limited")
	ErrLockHeld        = errors.New("lock already held")
	ErrBadSignature    = errors.New("bad request signature")
	ErrRequestConflict = errors.New("idempotency key reused with a different request")
	ErrUnavailable     = errors.New("not available in this mode")
	ErrSeqConflict     = errors.New("journal sequence already written")
)

// KindOf reports the category of err, or KindInternal for errors that are
// not ledger errors.
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindInternal
}

// CodeOf reports the ledger error code of err, or "Internal".
func CodeOf(err error) string {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code
	}
	return "Internal"
}
