package errs

import (
	"github.com/cockroachdb/errors"
)

// ErrorKind identifies a kind of bridge error.
// fully support for errors.Is and errors.As.
type ErrorKind string

const (
	// NotInitialized is returned when the evm params have not been bootstrapped yet.
	NotInitialized      = ErrorKind("bridge is not initialized")
	ValueTooSmall       = ErrorKind("value is too small to cover the fee")
	InvalidInscription  = ErrorKind("invalid inscription")
	MalformedAddress    = ErrorKind("malformed address")
	SigningFailed       = ErrorKind("signing failed")
	ChainSendFailed     = ErrorKind("failed to send transaction to chain")
	UtxoUnavailable     = ErrorKind("not enough spendable utxos")
	NotFound            = ErrorKind("not found")
	TaskExecutionFailed = ErrorKind("task execution failed")
	TimeoutOrPanic      = ErrorKind("task timed out or panicked")
	// CorruptRecord is returned when a persisted record cannot be decoded.
	// It needs an operator, never drop it silently.
	CorruptRecord = ErrorKind("corrupt persisted record")
	Unauthorized  = ErrorKind("unauthorized")
	// AlreadyOnChain is returned when a node refuses a tx it already has.
	AlreadyOnChain = ErrorKind("transaction already on chain")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, errPermanent)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, errPermanent)
}

var errPermanent = errors.New("permanent")
