package server

import (
	"context"
	"errors"
	"testing"

	"github.com/typedb/typedb-driver-sub001/internal/protocol"
)

func addr(port uint16) protocol.Address {
	return protocol.Address{Host: "127.0.0.1", Port: port}
}

// TestManager_PrimaryElectionHighestTerm verifies that among several
// replicas reporting themselves primary, the one with the highest term
// wins -- stale leaders from a past election must never be preferred over
// a newer one.
func TestManager_PrimaryElectionHighestTerm(t *testing.T) {
	m := New(protocol.FlatAddresses{addr(1729)}, "admin", "pw", nil, 3, true, 0, nil)

	m.RegisterReplica(addr(1729), protocol.ReplicaInfo{Address: addr(1729), Role: protocol.Secondary, Term: 7})
	m.RegisterReplica(addr(1730), protocol.ReplicaInfo{Address: addr(1730), Role: protocol.Primary, Term: 5})
	m.RegisterReplica(addr(1731), protocol.ReplicaInfo{Address: addr(1731), Role: protocol.Primary, Term: 9})
	m.RegisterReplica(addr(1732), protocol.ReplicaInfo{Address: addr(1732), Role: protocol.Primary, Term: 2})

	got, ok := m.findPrimaryReplica()
	if !ok {
		t.Fatalf("expected a primary replica to be found")
	}
	if got != addr(1731) {
		t.Fatalf("expected the term-9 replica %v to be elected, got %v", addr(1731), got)
	}
}

// TestManager_PrimaryElectionNoneWhenAllSecondary confirms the manager
// reports no primary rather than guessing when every known replica
// currently claims to be secondary.
func TestManager_PrimaryElectionNoneWhenAllSecondary(t *testing.T) {
	m := New(protocol.FlatAddresses{addr(1729)}, "admin", "pw", nil, 3, true, 0, nil)
	m.RegisterReplica(addr(1729), protocol.ReplicaInfo{Address: addr(1729), Role: protocol.Secondary, Term: 1})
	m.RegisterReplica(addr(1730), protocol.ReplicaInfo{Address: addr(1730), Role: protocol.Secondary, Term: 4})

	if _, ok := m.findPrimaryReplica(); ok {
		t.Fatalf("expected no primary to be found when every replica reports secondary")
	}
}

// TestManager_RetryBudgetIsConfigurable checks that a non-positive
// primaryFailoverRetries value is replaced with the default rather than
// leaving the manager with a zero retry budget, and that an explicit
// positive value is honored verbatim.
func TestManager_RetryBudgetIsConfigurable(t *testing.T) {
	m := New(protocol.FlatAddresses{addr(1729)}, "admin", "pw", nil, 2, true, 0, nil)
	if m.primaryFailoverRetries != 2 {
		t.Fatalf("expected configured retry budget of 2, got %d", m.primaryFailoverRetries)
	}

	def := New(protocol.FlatAddresses{addr(1729)}, "admin", "pw", nil, 0, true, 0, nil)
	if def.primaryFailoverRetries <= 0 {
		t.Fatalf("expected a positive default retry budget, got %d", def.primaryFailoverRetries)
	}
}

// TestManager_FailoverTerminatesWithinRetryBudget drives a task that
// always reports the replica it ran against isn't primary, and checks
// that executeStronglyConsistent gives up after exactly
// primaryFailoverRetries+1 attempts rather than retrying forever.
func TestManager_FailoverTerminatesWithinRetryBudget(t *testing.T) {
	m := New(protocol.FlatAddresses{addr(1729)}, "admin", "pw", nil, 2, true, 0, nil)
	m.RegisterReplica(addr(1729), protocol.ReplicaInfo{Address: addr(1729), Role: protocol.Primary, Term: 1})
	m.mu.Lock()
	m.replicaConnections[addr(1729)] = &Connection{address: addr(1729)}
	m.mu.Unlock()

	attempts := 0
	task := func(ctx context.Context, conn *Connection) (any, error) {
		attempts++
		return nil, ErrNotPrimaryOnReadOnly
	}

	if _, err := m.executeStronglyConsistent(context.Background(), task); err == nil {
		t.Fatalf("expected failover to exhaust its retry budget and return an error")
	}

	wantAttempts := m.primaryFailoverRetries + 1
	if attempts != wantAttempts {
		t.Fatalf("got %d attempts, want exactly %d (primaryFailoverRetries+1)", attempts, wantAttempts)
	}
}

// TestManager_ExecuteOnUnknownDirectReplicaFails confirms a
// ReplicaDependent operation naming an address outside both the known
// topology and the originally configured seed list is rejected before
// ever dialing or running the task.
func TestManager_ExecuteOnUnknownDirectReplicaFails(t *testing.T) {
	m := New(protocol.FlatAddresses{addr(1729)}, "admin", "pw", nil, 3, true, 0, nil)
	m.RegisterReplica(addr(1729), protocol.ReplicaInfo{Address: addr(1729), Role: protocol.Primary, Term: 1})

	called := false
	task := func(ctx context.Context, conn *Connection) (any, error) {
		called = true
		return nil, nil
	}

	_, err := m.executeOn(context.Background(), addr(9999), task)
	if !errors.Is(err, ErrUnknownDirectReplica) {
		t.Fatalf("expected ErrUnknownDirectReplica, got %v", err)
	}
	if called {
		t.Fatalf("task should never run against an address outside the known topology")
	}
}

func TestManager_DeregisterReplicaRemovesFromTopology(t *testing.T) {
	m := New(protocol.FlatAddresses{addr(1729)}, "admin", "pw", nil, 3, true, 0, nil)
	m.RegisterReplica(addr(1729), protocol.ReplicaInfo{Address: addr(1729), Role: protocol.Primary, Term: 1})
	m.DeregisterReplica(addr(1729))

	if _, ok := m.findPrimaryReplica(); ok {
		t.Fatalf("expected deregistered replica to no longer be considered")
	}
}

// TestManager_RefreshFromPrunesSiblingsWhenReplicationDisabled verifies
// that with useReplication false, refreshFrom discards every replica
// except the one the manager actually dialed, even when the server
// reports a larger cluster. It drives applyTopology, the step refreshFrom
// hands the server's replica list to, since there is no live connection.
func TestManager_RefreshFromPrunesSiblingsWhenReplicationDisabled(t *testing.T) {
	m := New(protocol.FlatAddresses{addr(1729)}, "admin", "pw", nil, 3, false, 0, nil)
	m.selfAddress = addr(1729)

	m.applyTopology([]protocol.ReplicaInfo{
		{Address: addr(1729), Role: protocol.Primary, Term: 1},
		{Address: addr(1730), Role: protocol.Secondary, Term: 1},
	})

	if len(m.replicas) != 1 {
		t.Fatalf("expected exactly one replica to survive pruning, got %d", len(m.replicas))
	}
	if _, ok := m.replicas[addr(1730)]; ok {
		t.Fatalf("expected sibling replica to be pruned when useReplication is false")
	}
}

// TestManager_SingleUnknownReplicaFallback verifies that a lone replica
// with no Primary/Secondary role reported (single-node mode) is treated
// as primary without requiring an election.
func TestManager_SingleUnknownReplicaFallback(t *testing.T) {
	m := New(protocol.FlatAddresses{addr(1729)}, "admin", "pw", nil, 3, true, 0, nil)
	m.RegisterReplica(addr(1729), protocol.ReplicaInfo{Address: addr(1729), Role: protocol.Unknown, Term: 0})

	got, ok := m.singleUnknownReplica()
	if !ok {
		t.Fatalf("expected the lone unknown-role replica to be usable as primary")
	}
	if got != addr(1729) {
		t.Fatalf("expected %v, got %v", addr(1729), got)
	}
}

// TestManager_SingleUnknownReplicaFallback_MultipleReplicas confirms the
// fallback never fires when more than one replica is known, since that's
// no longer unambiguous single-node mode.
func TestManager_SingleUnknownReplicaFallback_MultipleReplicas(t *testing.T) {
	m := New(protocol.FlatAddresses{addr(1729)}, "admin", "pw", nil, 3, true, 0, nil)
	m.RegisterReplica(addr(1729), protocol.ReplicaInfo{Address: addr(1729), Role: protocol.Unknown, Term: 0})
	m.RegisterReplica(addr(1730), protocol.ReplicaInfo{Address: addr(1730), Role: protocol.Unknown, Term: 0})

	if _, ok := m.singleUnknownReplica(); ok {
		t.Fatalf("expected no fallback when more than one replica is known")
	}
}

// TestManager_UpdateAddressTranslationRejectsFlatAddresses confirms an
// untranslated seed list is rejected rather than silently accepted as a
// translation map, since a FlatAddresses has nothing to translate.
func TestManager_UpdateAddressTranslationRejectsFlatAddresses(t *testing.T) {
	m := New(protocol.FlatAddresses{addr(1729)}, "admin", "pw", nil, 3, true, 0, nil)

	err := m.UpdateAddressTranslation(protocol.FlatAddresses{addr(1730)})
	if !errors.Is(err, ErrAddressTranslationWithoutTranslation) {
		t.Fatalf("expected ErrAddressTranslationWithoutTranslation, got %v", err)
	}
}

func TestManager_UpdateAddressTranslationAcceptsTranslatedAddresses(t *testing.T) {
	m := New(protocol.FlatAddresses{addr(1729)}, "admin", "pw", nil, 3, true, 0, nil)

	translated := protocol.TranslatedAddresses{addr(1729): addr(1730)}
	if err := m.UpdateAddressTranslation(translated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if priv, ok := m.configuredAddresses.ToPrivate(addr(1729)); !ok || priv != addr(1730) {
		t.Fatalf("expected translated address to take effect, got %v, %v", priv, ok)
	}
}
