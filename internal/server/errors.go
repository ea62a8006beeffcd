package server

import "errors"

// Sentinel errors of the server layer. The first seven are connection-class
// errors. Of these, Strong dispatch retries only ErrClusterReplicaNotPrimary
// and ErrNotPrimaryOnReadOnly, and Eventual dispatch moves on to the next
// replica on ErrServerConnectionFailed, ErrServerConnectionClosed and
// ErrUnableToConnect. ErrUnknownDirectReplica and
// ErrAddressTranslationWithoutTranslation are configuration errors and are
// never retried.
var (
	ErrServerConnectionFailed = errors.New("server: connection failed")
	ErrServerConnectionClosed = errors.New("server: connection closed")
	ErrTransactionIsClosed    = errors.New("server: transaction is closed")
	ErrClusterReplicaNotPrimary = errors.New("server: replica is not primary")
	ErrNoPrimaryReplica       = errors.New("server: no primary replica available")
	ErrNotPrimaryOnReadOnly   = errors.New("server: replica reported not-primary on a read-only operation")
	ErrUnableToConnect        = errors.New("server: unable to connect to any configured address")
	ErrUnknownDirectReplica   = errors.New("server: replica-dependent operation named an address outside the known topology")
	ErrAddressTranslationWithoutTranslation = errors.New("server: address translation update supplied an untranslated address set")
)

// TransactionOptions carries the pass-through fields forwarded verbatim to
// the server with each transaction-open request. The driver never
// interprets these itself.
type TransactionOptions struct {
	TransactionTimeoutMillis       uint64
	SchemaLockAcquireTimeoutMillis uint64
}
