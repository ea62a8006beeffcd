package typedb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/typedb/typedb-driver-sub001/internal/server"
	"github.com/typedb/typedb-driver-sub001/internal/txn"
)

// Kind classifies a driver error the way callers are expected to branch on
// it: by category, not by matching message text.
type Kind int

const (
	KindConnection Kind = iota
	KindConfiguration
	KindProtocol
	KindServer
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindConfiguration:
		return "configuration"
	case KindProtocol:
		return "protocol"
	case KindServer:
		return "server"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the one error type every public-facing driver call returns.
// Unwrap exposes the underlying cause so errors.Is/errors.As keep working
// against the internal sentinels it wraps.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("typedb: %s: %v", e.Message, e.Cause)
	}
	return "typedb: " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// ErrAbsentTLSConfig is returned at construction when TLSEnabled is set
// without a TLSConfig.
var ErrAbsentTLSConfig = errors.New("typedb: tls_enabled is true but no tls_config was provided")

// ErrAddressTranslationWithoutTranslation is returned when
// UpdateAddressTranslation is given a flat, untranslated address set.
var ErrAddressTranslationWithoutTranslation = errors.New("typedb: address translation update requires a translated address set")

// ErrInvalidAddressFormat wraps a malformed "host:port" or
// "public=private" address string.
func ErrInvalidAddressFormat(raw string, cause error) error {
	return newError(KindConfiguration, fmt.Sprintf("invalid address format %q", raw), cause)
}

// asError classifies an error surfacing from internal/server or
// internal/txn into the public Kind taxonomy, preserving it as the Cause so
// errors.Is/As against the internal sentinels keeps working across the
// facade boundary.
func asError(err error) error {
	var typedbErr *Error
	if errors.As(err, &typedbErr) {
		return typedbErr
	}
	switch {
	case errors.Is(err, server.ErrServerConnectionFailed),
		errors.Is(err, server.ErrServerConnectionClosed),
		errors.Is(err, server.ErrUnableToConnect),
		errors.Is(err, server.ErrNoPrimaryReplica):
		return newError(KindConnection, "could not reach a suitable server replica", err)
	case errors.Is(err, server.ErrTransactionIsClosed), errors.Is(err, txn.ErrTransactionIsClosed):
		return newError(KindConnection, "transaction is closed", err)
	case errors.Is(err, server.ErrClusterReplicaNotPrimary), errors.Is(err, server.ErrNotPrimaryOnReadOnly):
		return newError(KindConnection, "replica is not primary", err)
	case errors.Is(err, server.ErrUnknownDirectReplica):
		return newError(KindConfiguration, "replica-dependent operation named an address outside the known topology", err)
	case errors.Is(err, server.ErrAddressTranslationWithoutTranslation):
		return newError(KindConfiguration, "address translation update requires a translated address set", ErrAddressTranslationWithoutTranslation)
	default:
		return newError(KindInternal, "unexpected driver error", err)
	}
}

// serverConnectionFailedMessage formats a connection-failure diagnostic:
// the configured addresses, the addresses actually attempted, and one
// error detail per address. Nothing in the driver calls it; the error
// Bootstrap returns wraps ErrUnableToConnect with the last dial error only.
func serverConnectionFailedMessage(configured []string, attempts map[string]error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "unable to connect to any of the configured servers %v; attempted: ", configured)
	first := true
	for addr, err := range attempts {
		if !first {
			b.WriteString("; ")
		}
		first = false
		fmt.Fprintf(&b, "%s (%v)", addr, err)
	}
	return b.String()
}
