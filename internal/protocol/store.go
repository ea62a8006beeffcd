package protocol

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

// NodeRole is reused here as the replica role discriminant (Primary or
// Secondary), following the same closed-enum-with-String shape the node
// role type in this codec's connection bootstrap originally used.
type NodeRole int

// String implements the Stringer interface.
func (r NodeRole) String() string {
	switch r {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unknown role"
	}
}

// Address is a host:port pair identifying one server replica.
type Address struct {
	Host string
	Port uint16
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

func (a Address) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// ParseAddress accepts "host:port".
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("invalid address format %q: %w", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address format %q: %w", s, err)
	}
	return Address{Host: host, Port: uint16(port)}, nil
}

// Addresses is the seed-address configuration a driver bootstraps from:
// either a flat list (no translation) or a public-to-private translation
// map, matching the two construction modes DriverOptions supports.
type Addresses interface {
	List() []Address
	ToPrivate(public Address) (Address, bool)
}

// FlatAddresses is a seed list with no public/private translation: the
// dialed address is the reported address.
type FlatAddresses []Address

func (f FlatAddresses) List() []Address { return []Address(f) }

func (f FlatAddresses) ToPrivate(public Address) (Address, bool) {
	return public, true
}

// TranslatedAddresses maps a publicly-advertised replica address to the
// private address the driver should actually dial.
type TranslatedAddresses map[Address]Address

func (t TranslatedAddresses) List() []Address {
	out := make([]Address, 0, len(t))
	for pub := range t {
		out = append(out, pub)
	}
	return out
}

func (t TranslatedAddresses) ToPrivate(public Address) (Address, bool) {
	priv, ok := t[public]
	return priv, ok
}

// NodeInfo holds the seed-address bookkeeping persisted across restarts.
type NodeInfo struct {
	Address string `yaml:"Address"`
	Role    NodeRole `yaml:"Role"`
}

// NodeStore is used by a driver to get an initial list of candidate server
// addresses to dial in order to find the primary replica to connect to.
//
// Once connected, the driver periodically updates the addresses in the
// store by querying the primary about changes in cluster topology.
type NodeStore interface {
	// Get returns the list of known servers.
	Get(context.Context) ([]NodeInfo, error)

	// Set updates the list of known servers.
	Set(context.Context, []NodeInfo) error
}

// InmemNodeStore keeps the list of servers in memory.
type InmemNodeStore struct {
	mu      sync.RWMutex
	servers []NodeInfo
}

// NewInmemNodeStore creates a NodeStore which stores its data in-memory.
func NewInmemNodeStore() *InmemNodeStore {
	return &InmemNodeStore{
		servers: make([]NodeInfo, 0),
	}
}

// Get the current servers.
func (i *InmemNodeStore) Get(ctx context.Context) ([]NodeInfo, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	ret := make([]NodeInfo, len(i.servers))
	copy(ret, i.servers)
	return ret, nil
}

// Set the servers.
func (i *InmemNodeStore) Set(ctx context.Context, servers []NodeInfo) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.servers = servers
	return nil
}

// ReplicaInfo is what the server manager knows about one replica: its
// address, role, and the term it last reported. Term is what ties are
// broken on when more than one replica claims to be primary.
type ReplicaInfo struct {
	Address  Address
	Role     NodeRole
	Term     uint64
	Database string
}

func (r ReplicaInfo) IsPrimary() bool { return r.Role == Primary }
