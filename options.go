package typedb

import (
	"crypto/tls"

	"github.com/typedb/typedb-driver-sub001/internal/protocol"
	"github.com/typedb/typedb-driver-sub001/internal/server"
	"github.com/typedb/typedb-driver-sub001/logging"
)

// driverOptions holds the recognized DriverOptions fields, built up by a
// chain of Option funcs the way client.Option/driver.Option do in the
// pack's other connection-layer packages.
type driverOptions struct {
	tlsEnabled             bool
	tlsConfig              *tls.Config
	useReplication         bool
	primaryFailoverRetries int
	replicaDiscoveryLimit  int
	log                    logging.Func
	nodeStore              protocol.NodeStore
}

type DriverOption func(*driverOptions)

func defaultDriverOptions() *driverOptions {
	return &driverOptions{
		useReplication:         true,
		primaryFailoverRetries: 3,
	}
}

// WithTLS enables TLS and supplies the config to dial with. Per the
// handshake's construction-time contract, constructing a driver with
// TLSEnabled but no config fails immediately rather than at first dial.
func WithTLS(config *tls.Config) DriverOption {
	return func(o *driverOptions) {
		o.tlsEnabled = true
		o.tlsConfig = config
	}
}

// WithReplication toggles whether the driver discovers and uses sibling
// replicas at all; when false, it only ever talks to the one replica it
// first connected to.
func WithReplication(enabled bool) DriverOption {
	return func(o *driverOptions) { o.useReplication = enabled }
}

// WithPrimaryFailoverRetries caps how many times Execute reseeks the
// primary before giving up on a strongly-consistent call.
func WithPrimaryFailoverRetries(retries int) DriverOption {
	return func(o *driverOptions) { o.primaryFailoverRetries = retries }
}

// WithReplicaDiscoveryAttempts caps how many replicas eventual-consistency
// dispatch will try before giving up.
func WithReplicaDiscoveryAttempts(attempts int) DriverOption {
	return func(o *driverOptions) { o.replicaDiscoveryLimit = attempts }
}

// WithLogFunc wires the driver's internal components to an application's
// own logger instead of discarding diagnostic output.
func WithLogFunc(log logging.Func) DriverOption {
	return func(o *driverOptions) { o.log = log }
}

// WithNodeStore warm-starts Bootstrap from previously-persisted seed
// addresses and keeps them refreshed in the background for as long as the
// driver stays open, so a later process restart can reach the cluster even
// if every originally-configured address has since gone away.
func WithNodeStore(store protocol.NodeStore) DriverOption {
	return func(o *driverOptions) { o.nodeStore = store }
}

// TransactionType selects which kind of transaction is opened.
type TransactionType uint8

const (
	Read TransactionType = iota
	Write
	Schema
)

// transactionOptions holds the recognized TransactionOptions fields.
type transactionOptions struct {
	readConsistencyLevel          *ConsistencyLevel
	transactionTimeoutMillis      uint64
	schemaLockAcquireTimeoutMillis uint64
}

type TransactionOption func(*transactionOptions)

func defaultTransactionOptions() *transactionOptions {
	return &transactionOptions{}
}

// WithReadConsistencyLevel overrides the consistency level used for a Read
// transaction; Write and Schema transactions always use Strong regardless
// of this option.
func WithReadConsistencyLevel(level ConsistencyLevel) TransactionOption {
	return func(o *transactionOptions) { o.readConsistencyLevel = &level }
}

func WithTransactionTimeoutMillis(millis uint64) TransactionOption {
	return func(o *transactionOptions) { o.transactionTimeoutMillis = millis }
}

func WithSchemaLockAcquireTimeoutMillis(millis uint64) TransactionOption {
	return func(o *transactionOptions) { o.schemaLockAcquireTimeoutMillis = millis }
}

func (o *transactionOptions) toServerOptions() server.TransactionOptions {
	return server.TransactionOptions{
		TransactionTimeoutMillis:       o.transactionTimeoutMillis,
		SchemaLockAcquireTimeoutMillis: o.schemaLockAcquireTimeoutMillis,
	}
}

// ConsistencyLevel selects which replica(s) an operation may be routed to.
type ConsistencyLevel = server.ConsistencyLevel

func StrongConsistency() ConsistencyLevel  { return server.Strong() }
func EventualConsistency() ConsistencyLevel { return server.Eventual() }
func ReplicaDependentConsistency(addr Address) ConsistencyLevel {
	return server.ReplicaDependent(addr)
}
