package typedb

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/typedb/typedb-driver-sub001/internal/protocol"
	"github.com/typedb/typedb-driver-sub001/internal/runtime"
	"github.com/typedb/typedb-driver-sub001/internal/server"
	"github.com/typedb/typedb-driver-sub001/logging"
)

// topologyRefreshInterval is how often the driver's background runtime
// calls Manager.RefreshTopology and re-persists the known replicas to the
// node store.
const topologyRefreshInterval = 30 * time.Second

// combinedAddresses layers a node store's previously-persisted addresses
// behind the caller-supplied seed addresses: the caller's list is always
// tried first, the persisted list only fills in past that.
type combinedAddresses struct {
	primary protocol.Addresses
	extra   []protocol.Address
}

func (c combinedAddresses) List() []protocol.Address {
	out := make([]protocol.Address, 0, len(c.primary.List())+len(c.extra))
	out = append(out, c.primary.List()...)
	out = append(out, c.extra...)
	return out
}

func (c combinedAddresses) ToPrivate(public protocol.Address) (protocol.Address, bool) {
	if priv, ok := c.primary.ToPrivate(public); ok {
		return priv, ok
	}
	return public, true
}

// Driver (C7) is the top-level handle an application holds: it owns the
// server manager's replica topology and connections, the background
// runtime those connections schedule work on, and thin DatabaseManager /
// UserManager views. Every blocking call takes a context and every public
// method is safe to call from multiple goroutines at once.
type Driver struct {
	manager   *server.Manager
	runtime   *runtime.Runtime
	databases *DatabaseManager
	users     *UserManager
	nodeStore protocol.NodeStore
	log       logging.Func
	closed    atomic.Bool
}

// OpenDriver dials the given seed addresses, authenticates with creds, and
// bootstraps the replica topology before returning. It fails fast -- per
// the construction-time TLS contract -- if TLS is requested without a
// config, rather than discovering the problem at first dial.
func OpenDriver(ctx context.Context, addresses Addresses, creds Credentials, opts ...DriverOption) (*Driver, error) {
	o := defaultDriverOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.tlsEnabled && o.tlsConfig == nil {
		return nil, newError(KindConfiguration, "tls_enabled is true but no tls_config was provided", ErrAbsentTLSConfig)
	}
	log := o.log
	if log == nil {
		log = logging.Discard
	}

	seedAddrs := addresses
	if o.nodeStore != nil {
		if persisted, err := o.nodeStore.Get(ctx); err == nil && len(persisted) > 0 {
			extra := make([]protocol.Address, 0, len(persisted))
			for _, n := range persisted {
				if a, err := protocol.ParseAddress(n.Address); err == nil {
					extra = append(extra, a)
				}
			}
			if len(extra) > 0 {
				seedAddrs = combinedAddresses{primary: addresses, extra: extra}
			}
		} else if err != nil {
			log(logging.Warn, "typedb: failed to load persisted seed addresses: %v", err)
		}
	}

	mgr := server.New(seedAddrs, creds.Username, creds.Password, o.tlsConfig, o.primaryFailoverRetries, o.useReplication, o.replicaDiscoveryLimit, log)
	if err := mgr.Bootstrap(ctx); err != nil {
		return nil, asError(err)
	}

	if o.nodeStore != nil {
		persistTopology(ctx, o.nodeStore, mgr, log)
	}

	rt := runtime.New()
	d := &Driver{manager: mgr, runtime: rt, nodeStore: o.nodeStore, log: log}
	d.databases = &DatabaseManager{driver: d}
	d.users = &UserManager{driver: d}

	if o.nodeStore != nil {
		rt.Submit(func(ctx context.Context) error { return d.refreshTopologyLoop(ctx) })
	}

	return d, nil
}

func persistTopology(ctx context.Context, store protocol.NodeStore, mgr *server.Manager, log logging.Func) {
	replicas := mgr.Replicas()
	infos := make([]protocol.NodeInfo, 0, len(replicas))
	for _, r := range replicas {
		infos = append(infos, protocol.NodeInfo{Address: r.Address.String(), Role: r.Role})
	}
	if err := store.Set(ctx, infos); err != nil {
		log(logging.Warn, "typedb: failed to persist replica topology: %v", err)
	}
}

// refreshTopologyLoop runs on the driver's background runtime, keeping the
// manager's cached topology warm and the node store in sync with it.
func (d *Driver) refreshTopologyLoop(ctx context.Context) error {
	ticker := time.NewTicker(topologyRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.manager.RefreshTopology(ctx); err != nil {
				d.log(logging.Warn, "typedb: background topology refresh failed: %v", err)
				continue
			}
			if d.nodeStore != nil {
				persistTopology(ctx, d.nodeStore, d.manager, d.log)
			}
		}
	}
}

// Transaction opens a new transaction against database, routed to a
// replica chosen by consistency level: Read defaults to Strong but may be
// overridden with WithReadConsistencyLevel; Write and Schema are always
// Strong regardless of any option, since both must reach the primary.
func (d *Driver) Transaction(ctx context.Context, database string, txType TransactionType, opts ...TransactionOption) (*Transaction, error) {
	if d.closed.Load() {
		return nil, newError(KindConnection, "driver is closed", nil)
	}

	o := defaultTransactionOptions()
	for _, opt := range opts {
		opt(o)
	}

	level := StrongConsistency()
	if txType == Read && o.readConsistencyLevel != nil {
		level = *o.readConsistencyLevel
	}

	result, err := d.manager.Execute(ctx, level, func(ctx context.Context, conn *server.Connection) (any, error) {
		transmitter, _, err := conn.OpenTransaction(ctx, database, uint8(txType), o.toServerOptions())
		if err != nil {
			return nil, err
		}
		return &Transaction{transmitter: transmitter, txType: txType, database: database}, nil
	})
	if err != nil {
		return nil, asError(err)
	}
	return result.(*Transaction), nil
}

// Databases returns the database-management view of this driver.
func (d *Driver) Databases() *DatabaseManager { return d.databases }

// Users returns the user-management view of this driver.
func (d *Driver) Users() *UserManager { return d.users }

// Replicas reports every replica known to whichever replica level selects,
// queried live rather than from the driver's local cache -- level may be
// Strong (ask the primary), Eventual (ask any reachable replica), or
// ReplicaDependent (ask one named replica).
func (d *Driver) Replicas(ctx context.Context, level ConsistencyLevel) ([]ReplicaStatus, error) {
	result, err := d.manager.Execute(ctx, level, func(ctx context.Context, conn *server.Connection) (any, error) {
		return conn.ServersAll(ctx)
	})
	if err != nil {
		return nil, asError(err)
	}
	resp := result.(protocol.ServersAllResponse)
	out := make([]ReplicaStatus, 0, len(resp.Replicas))
	for _, r := range resp.Replicas {
		out = append(out, ReplicaStatus{Address: r.Address, Primary: r.IsPrimary(), Term: r.Term, Database: r.Database})
	}
	return out, nil
}

// PrimaryReplica asks the replica(s) level selects for the current replica
// list and returns whichever one reports itself primary with the highest
// term.
func (d *Driver) PrimaryReplica(ctx context.Context, level ConsistencyLevel) (ReplicaStatus, error) {
	replicas, err := d.Replicas(ctx, level)
	if err != nil {
		return ReplicaStatus{}, err
	}
	var best ReplicaStatus
	found := false
	for _, r := range replicas {
		if r.Primary && (!found || r.Term > best.Term) {
			best, found = r, true
		}
	}
	if !found {
		return ReplicaStatus{}, asError(server.ErrNoPrimaryReplica)
	}
	return best, nil
}

// ServerVersion asks the replica(s) level selects for its version string.
func (d *Driver) ServerVersion(ctx context.Context, level ConsistencyLevel) (string, error) {
	result, err := d.manager.Execute(ctx, level, func(ctx context.Context, conn *server.Connection) (any, error) {
		resp, err := conn.ServerVersion(ctx)
		if err != nil {
			return nil, err
		}
		return resp.Version, nil
	})
	if err != nil {
		return "", asError(err)
	}
	return result.(string), nil
}

// AddReplica asks the current primary to add addr to the cluster topology
// and reconciles the driver's connection pool against the refreshed
// replica list the primary returns.
func (d *Driver) AddReplica(ctx context.Context, addr Address) error {
	return asErrorOrNil(d.manager.AddReplica(ctx, addr))
}

// RemoveReplica asks the current primary to remove addr from the cluster
// topology and reconciles the driver's connection pool against what
// remains.
func (d *Driver) RemoveReplica(ctx context.Context, addr Address) error {
	return asErrorOrNil(d.manager.RemoveReplica(ctx, addr))
}

// UpdateAddressTranslation swaps the public/private address map the driver
// dials newly discovered replicas through. addresses must carry an actual
// translation, built with AddressesFromTranslationStrings or equivalent --
// a flat, untranslated seed list is rejected.
func (d *Driver) UpdateAddressTranslation(addresses Addresses) error {
	if err := d.manager.UpdateAddressTranslation(addresses); err != nil {
		return asError(err)
	}
	return nil
}

// IsOpen reports whether the driver has not yet been force-closed.
func (d *Driver) IsOpen() bool { return !d.closed.Load() }

// ForceClose tears the driver down: every open transaction's stream is
// canceled first (cascading from each server connection's ForceClose),
// then every server connection itself, then the background runtime. Safe
// to call more than once.
func (d *Driver) ForceClose() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.manager.ForceClose()
	return d.runtime.Shutdown()
}

// ReplicaStatus is the introspection-friendly view of one known replica.
type ReplicaStatus struct {
	Address  Address
	Primary  bool
	Term     uint64
	Database string
}
