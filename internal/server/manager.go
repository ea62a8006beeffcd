package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"

	"github.com/typedb/typedb-driver-sub001/internal/protocol"
	"github.com/typedb/typedb-driver-sub001/logging"
)

// primaryReplicaSelectionTimeout is the deadline of the context one whole
// seekPrimary call dials and refreshes under; if it has expired when the
// retries give up, seekPrimary reports ErrNoPrimaryReplica.
const primaryReplicaSelectionTimeout = 2 * time.Second

// ConsistencyLevel selects which replica(s) an operation may be routed to.
// It is a small closed sum type, matching the three levels named in the
// data model: Strong reads/writes always go to the primary (with
// failover), Eventual may go to any replica, ReplicaDependent pins the
// operation to one named replica.
type ConsistencyLevel struct {
	kind    consistencyKind
	replica protocol.Address
}

type consistencyKind int

const (
	consistencyStrong consistencyKind = iota
	consistencyEventual
	consistencyReplicaDependent
)

func Strong() ConsistencyLevel  { return ConsistencyLevel{kind: consistencyStrong} }
func Eventual() ConsistencyLevel { return ConsistencyLevel{kind: consistencyEventual} }
func ReplicaDependent(addr protocol.Address) ConsistencyLevel {
	return ConsistencyLevel{kind: consistencyReplicaDependent, replica: addr}
}

// Task is one unit of work the manager routes to a connection. It returns
// ErrClusterReplicaNotPrimary/ErrNotPrimaryOnReadOnly when the replica it
// ran against turned out not to be (or no longer be) primary, which the
// manager interprets as a signal to reseek the primary and retry.
type Task func(ctx context.Context, conn *Connection) (any, error)

// Manager (C6) owns the driver's view of cluster topology: every known
// replica, one Connection per reachable replica, and any public/private
// address translation. Execute is the single entry point every higher
// layer uses to run a Task under a chosen ConsistencyLevel, with primary
// failover handled transparently for Strong reads/writes.
type Manager struct {
	configuredAddresses protocol.Addresses
	username, password  string
	tlsConfig            *tls.Config
	primaryFailoverRetries int
	useReplication       bool
	replicaDiscoveryLimit int
	log                  logging.Func

	mu                 sync.RWMutex
	replicas           map[protocol.Address]protocol.ReplicaInfo
	replicaConnections map[protocol.Address]*Connection
	selfAddress        protocol.Address // the one replica dialed at Bootstrap, used when useReplication is false
}

// New constructs a Manager with no connections yet; call Bootstrap before
// the first Execute. replicaDiscoveryLimit <= 0 means "try every known
// replica" for Eventual dispatch.
func New(addresses protocol.Addresses, username, password string, tlsConfig *tls.Config, primaryFailoverRetries int, useReplication bool, replicaDiscoveryLimit int, log logging.Func) *Manager {
	if log == nil {
		log = logging.Discard
	}
	if primaryFailoverRetries <= 0 {
		primaryFailoverRetries = 3
	}
	return &Manager{
		configuredAddresses:    addresses,
		username:               username,
		password:               password,
		tlsConfig:              tlsConfig,
		primaryFailoverRetries: primaryFailoverRetries,
		useReplication:         useReplication,
		replicaDiscoveryLimit:  replicaDiscoveryLimit,
		log:                    log,
		replicas:               make(map[protocol.Address]protocol.ReplicaInfo),
		replicaConnections:     make(map[protocol.Address]*Connection),
	}
}

// Bootstrap dials the configured seed addresses, in order, until one
// answers, then refreshes the full replica topology from it. When
// useReplication is false, the discovered set is pruned to just the
// replica actually dialed: the driver never contacts any sibling.
func (m *Manager) Bootstrap(ctx context.Context) error {
	var lastErr error
	for _, pub := range m.configuredAddresses.List() {
		priv, ok := m.configuredAddresses.ToPrivate(pub)
		if !ok {
			priv = pub
		}

		conn, err := Open(ctx, priv, m.username, m.password, m.tlsConfig, m.log)
		if err != nil {
			lastErr = err
			m.log(logging.Warn, "server: bootstrap dial %s failed: %v", pub, err)
			continue
		}

		m.mu.Lock()
		m.selfAddress = pub
		m.mu.Unlock()

		if err := m.refreshFrom(ctx, conn); err != nil {
			_ = conn.ForceClose()
			lastErr = err
			continue
		}

		m.mu.Lock()
		if len(m.replicas) == 0 {
			m.mu.Unlock()
			_ = conn.ForceClose()
			lastErr = fmt.Errorf("server: %s reported an empty replica set", pub)
			continue
		}
		m.replicaConnections[pub] = conn
		m.mu.Unlock()
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrUnableToConnect, lastErr)
	}
	return ErrUnableToConnect
}

// refreshFrom queries one connection for the full replica list and
// replaces the manager's cached topology with it, pruned to selfAddress
// alone when the driver isn't using replication.
func (m *Manager) refreshFrom(ctx context.Context, conn *Connection) error {
	resp, err := conn.ServersAll(ctx)
	if err != nil {
		return err
	}
	m.applyTopology(resp.Replicas)
	return nil
}

// applyTopology replaces the manager's cached replica set with replicas,
// pruned to selfAddress alone when the driver isn't using replication.
// Shared by refreshFrom and the register/deregister RPCs, both of which
// receive a freshly authoritative replica list from the server.
func (m *Manager) applyTopology(replicaList []protocol.ReplicaInfo) {
	m.mu.Lock()
	replicas := make(map[protocol.Address]protocol.ReplicaInfo, len(replicaList))
	for _, r := range replicaList {
		if !m.useReplication && r.Address != m.selfAddress {
			continue
		}
		replicas[r.Address] = r
	}
	m.replicas = replicas
	m.mu.Unlock()
}

// RegisterReplica and DeregisterReplica adjust the manager's local
// topology cache directly, without contacting the server -- they're
// driven by a prior ServersAll-shaped response the caller already
// decoded (e.g. while seeding a freshly bootstrapped manager, or in
// tests). AddReplica/RemoveReplica below are the RPC-backed operations
// that actually mutate the cluster.
func (m *Manager) RegisterReplica(addr protocol.Address, info protocol.ReplicaInfo) {
	m.mu.Lock()
	m.replicas[addr] = info
	m.mu.Unlock()
}

func (m *Manager) DeregisterReplica(addr protocol.Address) {
	m.mu.Lock()
	delete(m.replicas, addr)
	if conn, ok := m.replicaConnections[addr]; ok {
		delete(m.replicaConnections, addr)
		go conn.ForceClose()
	}
	m.mu.Unlock()
}

// AddReplica asks the current primary to add addr to the cluster
// topology, applies the refreshed replica list the primary returns, and
// then reconciles the connection pool against it -- the
// execute→refresh→refresh-connections sequencing every topology mutation
// in this package follows.
func (m *Manager) AddReplica(ctx context.Context, addr protocol.Address) error {
	result, err := m.executeStronglyConsistent(ctx, func(ctx context.Context, conn *Connection) (any, error) {
		return conn.ServersRegister(ctx, addr)
	})
	if err != nil {
		return err
	}
	m.applyTopology(result.(protocol.ServersAllResponse).Replicas)
	return m.refreshReplicaConnections(ctx)
}

// RemoveReplica asks the current primary to remove addr from the cluster
// topology, applies the refreshed replica list, closes any live
// connection the manager held to it, and reconciles the connection pool
// against what remains.
func (m *Manager) RemoveReplica(ctx context.Context, addr protocol.Address) error {
	result, err := m.executeStronglyConsistent(ctx, func(ctx context.Context, conn *Connection) (any, error) {
		return conn.ServersDeregister(ctx, addr)
	})
	if err != nil {
		return err
	}
	m.applyTopology(result.(protocol.ServersAllResponse).Replicas)

	m.mu.Lock()
	if conn, ok := m.replicaConnections[addr]; ok {
		delete(m.replicaConnections, addr)
		go conn.ForceClose()
	}
	m.mu.Unlock()

	return m.refreshReplicaConnections(ctx)
}

// UpdateAddressTranslation swaps the public/private address map used when
// dialing newly discovered replicas. addresses must itself carry a
// translation (TranslatedAddresses) -- a flat, untranslated seed list has
// nothing to translate and is rejected rather than silently accepted.
func (m *Manager) UpdateAddressTranslation(addresses protocol.Addresses) error {
	if _, ok := addresses.(protocol.TranslatedAddresses); !ok {
		return ErrAddressTranslationWithoutTranslation
	}
	m.mu.Lock()
	m.configuredAddresses = addresses
	m.mu.Unlock()
	return nil
}

// Execute routes task to a replica chosen per level, retrying primary
// failover up to primaryFailoverRetries+1 total attempts for Strong.
func (m *Manager) Execute(ctx context.Context, level ConsistencyLevel, task Task) (any, error) {
	switch level.kind {
	case consistencyStrong:
		return m.executeStronglyConsistent(ctx, task)
	case consistencyReplicaDependent:
		return m.executeOn(ctx, level.replica, task)
	default:
		return m.executeOnAny(ctx, task)
	}
}

func (m *Manager) executeStronglyConsistent(ctx context.Context, task Task) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= m.primaryFailoverRetries; attempt++ {
		conn, addr, err := m.primaryConnection(ctx)
		if err != nil {
			return nil, err
		}

		result, err := task(ctx, conn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isNotPrimaryErr(err) {
			return nil, err
		}

		m.log(logging.Warn, "server: %s reported not primary, reseeking (attempt %d/%d)", addr, attempt+1, m.primaryFailoverRetries+1)
		if seekErr := m.seekPrimary(ctx); seekErr != nil {
			return nil, seekErr
		}
	}
	return nil, fmt.Errorf("server: exhausted %d primary failover attempts: %w", m.primaryFailoverRetries+1, lastErr)
}

func isNotPrimaryErr(err error) bool {
	return errors.Is(err, ErrClusterReplicaNotPrimary) || errors.Is(err, ErrNotPrimaryOnReadOnly)
}

func (m *Manager) executeOn(ctx context.Context, addr protocol.Address, task Task) (any, error) {
	if !m.isKnownAddress(addr) {
		return nil, fmt.Errorf("%w: %s not among %v", ErrUnknownDirectReplica, addr, m.configuredAddresses.List())
	}
	conn, err := m.connectionFor(ctx, addr)
	if err != nil {
		return nil, err
	}
	return task(ctx, conn)
}

// isKnownAddress reports whether addr is either a currently known replica
// or one of the manager's originally configured seed addresses -- a
// ReplicaDependent operation may only target one of these, never an
// arbitrary address the caller made up.
func (m *Manager) isKnownAddress(addr protocol.Address) bool {
	m.mu.RLock()
	_, known := m.replicas[addr]
	m.mu.RUnlock()
	if known {
		return true
	}
	for _, a := range m.configuredAddresses.List() {
		if a == addr {
			return true
		}
	}
	return false
}

// executeOnAny tries up to replicaDiscoveryLimit known replicas (ordered by
// latency estimate, lowest first), falling through to the next on any
// connection-layer error. replicaDiscoveryLimit <= 0 means try them all.
func (m *Manager) executeOnAny(ctx context.Context, task Task) (any, error) {
	if err := m.refreshReplicaConnections(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	candidates := make([]*Connection, 0, len(m.replicaConnections))
	for _, conn := range m.replicaConnections {
		candidates = append(candidates, conn)
	}
	limit := m.replicaDiscoveryLimit
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Latency() < candidates[j].Latency() })

	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	var lastErr error
	for i := 0; i < limit; i++ {
		result, err := task(ctx, candidates[i])
		if err == nil {
			return result, nil
		}
		if isNotPrimaryErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrNotPrimaryOnReadOnly, err)
		}
		if !errors.Is(err, ErrServerConnectionFailed) && !errors.Is(err, ErrServerConnectionClosed) && !errors.Is(err, ErrUnableToConnect) {
			return nil, err
		}
		lastErr = err
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoPrimaryReplica
}

// primaryConnection returns a connection to whichever replica the manager
// currently believes is primary, electing one first if necessary. When
// exactly one replica is known and its role is Unknown (single-node mode,
// no election has ever run), that replica is treated as primary.
func (m *Manager) primaryConnection(ctx context.Context) (*Connection, protocol.Address, error) {
	addr, ok := m.findPrimaryReplica()
	if !ok {
		addr, ok = m.singleUnknownReplica()
	}
	if !ok {
		if err := m.seekPrimary(ctx); err != nil {
			return nil, protocol.Address{}, err
		}
		addr, ok = m.findPrimaryReplica()
		if !ok {
			addr, ok = m.singleUnknownReplica()
		}
		if !ok {
			return nil, protocol.Address{}, ErrNoPrimaryReplica
		}
	}

	conn, err := m.connectionFor(ctx, addr)
	if err != nil {
		return nil, protocol.Address{}, err
	}
	return conn, addr, nil
}

// singleUnknownReplica reports the lone replica the manager knows about
// when it's the only one and carries no Primary/Secondary role yet --
// the single-node topology a fresh standalone server reports.
func (m *Manager) singleUnknownReplica() (protocol.Address, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.replicas) != 1 {
		return protocol.Address{}, false
	}
	for addr, r := range m.replicas {
		if r.Role == protocol.Unknown {
			return addr, true
		}
	}
	return protocol.Address{}, false
}

// findPrimaryReplica picks the replica with the highest reported term
// among those currently marked primary. Ties on term go to the replica
// whose address sorts first as a string, so the choice does not depend on
// map iteration order.
func (m *Manager) findPrimaryReplica() (protocol.Address, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best protocol.ReplicaInfo
	found := false
	for _, r := range m.replicas {
		if !r.IsPrimary() {
			continue
		}
		if !found || r.Term > best.Term || (r.Term == best.Term && r.Address.String() < best.Address.String()) {
			best, found = r, true
		}
	}
	return best.Address, found
}

// seekPrimary refreshes replica topology from every currently reachable
// replica connection, retrying with exponential backoff until a primary is
// found or primaryReplicaSelectionTimeout elapses -- an election triggered
// by a stale "not primary" response can take a moment to settle.
func (m *Manager) seekPrimary(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, primaryReplicaSelectionTimeout)
	defer cancel()

	action := func(attempt uint) error {
		if err := m.refreshReplicaConnections(ctx); err != nil {
			return err
		}
		if _, ok := m.findPrimaryReplica(); ok {
			return nil
		}
		if _, ok := m.singleUnknownReplica(); ok {
			return nil
		}
		return ErrNoPrimaryReplica
	}

	err := retry.Retry(action,
		strategy.Limit(6),
		strategy.Backoff(backoff.BinaryExponential(20*time.Millisecond)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ErrNoPrimaryReplica
		}
		return err
	}
	return nil
}

// refreshReplicaConnections dials any replica in the known topology that
// the manager doesn't yet have a live connection to, sorted so the most
// likely-useful addresses (those already known to be primary) are tried
// first.
func (m *Manager) refreshReplicaConnections(ctx context.Context) error {
	m.mu.RLock()
	known := make([]protocol.ReplicaInfo, 0, len(m.replicas))
	for _, r := range m.replicas {
		known = append(known, r)
	}
	m.mu.RUnlock()

	sort.Slice(known, func(i, j int) bool {
		if known[i].IsPrimary() != known[j].IsPrimary() {
			return known[i].IsPrimary()
		}
		return known[i].Term > known[j].Term
	})

	var lastErr error
	refreshed := false
	for _, r := range known {
		m.mu.RLock()
		_, have := m.replicaConnections[r.Address]
		m.mu.RUnlock()
		if have {
			continue
		}

		priv, ok := m.configuredAddresses.ToPrivate(r.Address)
		if !ok {
			priv = r.Address
		}
		conn, err := Open(ctx, priv, m.username, m.password, m.tlsConfig, m.log)
		if err != nil {
			lastErr = err
			continue
		}

		if err := m.refreshFrom(ctx, conn); err == nil {
			refreshed = true
		}

		m.mu.Lock()
		m.replicaConnections[r.Address] = conn
		m.mu.Unlock()
	}

	if !refreshed && lastErr != nil && len(m.replicaConnections) == 0 {
		return fmt.Errorf("%w: %v", ErrUnableToConnect, lastErr)
	}
	return nil
}

// RefreshTopology dials every known replica the manager has no connection
// to yet and refreshes the cached topology from each connection it opens,
// exported so a driver's background runtime can call it between requests.
// Replicas that already have a connection are not re-queried.
func (m *Manager) RefreshTopology(ctx context.Context) error {
	return m.refreshReplicaConnections(ctx)
}

func (m *Manager) connectionFor(ctx context.Context, addr protocol.Address) (*Connection, error) {
	m.mu.RLock()
	conn, ok := m.replicaConnections[addr]
	m.mu.RUnlock()
	if ok {
		return conn, nil
	}

	priv, ok := m.configuredAddresses.ToPrivate(addr)
	if !ok {
		priv = addr
	}
	conn, err := Open(ctx, priv, m.username, m.password, m.tlsConfig, m.log)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.replicaConnections[addr] = conn
	m.mu.Unlock()
	return conn, nil
}

// Replicas returns a snapshot of every replica the manager currently knows
// about, for introspection callers (e.g. Driver.Replicas).
func (m *Manager) Replicas() []protocol.ReplicaInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]protocol.ReplicaInfo, 0, len(m.replicas))
	for _, r := range m.replicas {
		out = append(out, r)
	}
	return out
}

// PrimaryReplica returns the replica the manager currently believes is
// primary, electing one first if none is cached yet.
func (m *Manager) PrimaryReplica(ctx context.Context) (protocol.ReplicaInfo, error) {
	addr, ok := m.findPrimaryReplica()
	if !ok {
		if err := m.seekPrimary(ctx); err != nil {
			return protocol.ReplicaInfo{}, err
		}
		addr, ok = m.findPrimaryReplica()
		if !ok {
			return protocol.ReplicaInfo{}, ErrNoPrimaryReplica
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.replicas[addr], nil
}

// ForceClose tears down every connection the manager holds.
func (m *Manager) ForceClose() {
	m.mu.Lock()
	conns := m.replicaConnections
	m.replicaConnections = make(map[protocol.Address]*Connection)
	m.mu.Unlock()

	for _, conn := range conns {
		_ = conn.ForceClose()
	}
}
