// Package memory is an in-process Store used by tests and by the server when no database is configured.
// Transactions are serialized under one mutex and roll back by discarding a cloned snapshot.
package memory

import (
	"context"
	"sync"

	auditdomain "records-dashboard/backend/internal/audit/domain"
	invitationdomain "records-dashboard/backend/internal/invitation/domain"
	membershipdomain "records-dashboard/backend/internal/membership/domain"
	orgdomain "records-dashboard/backend/internal/organization/domain"
	"records-dashboard/backend/internal/store"
	transferdomain "records-dashboard/backend/internal/transfer/domain"
)

// Store holds all records in maps keyed by ID.
type Store struct {
	mu sync.Mutex
	st *state

	faultMu sync.Mutex
	faults  map[string]error
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState(), faults: make(map[string]error)}
}

var _ store.Store = (*Store)(nil)

// Repos returns repositories that lock the store for each call.
func (s *Store) Repos() store.Repos {
	return reposFor(&handle{store: s})
}

// WithinTx runs fn on a private copy of the state and publishes it only if fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(store.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fault("tx.begin", ""); err != nil {
		return err
	}
	snapshot := s.st.clone()
	if err := fn(reposFor(&handle{store: s, st: snapshot})); err != nil {
		return err
	}
	if err := s.fault("tx.commit", ""); err != nil {
		return err
	}
	s.st = snapshot
	return nil
}

// Ping reports the ping fault, if one is injected.
func (s *Store) Ping(context.Context) error {
	return s.fault("ping", "")
}

// InjectFault makes op fail with err until cleared. op is an operation name such as
// "members.delete", optionally narrowed to one record as "members.delete:<id>".
// A nil err clears the fault.
func (s *Store) InjectFault(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op, id string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if id != "" {
		if err, ok := s.faults[op+":"+id]; ok {
			return err
		}
	}
	return s.faults[op]
}

// handle routes a repository call either to the shared state under the store lock
// or to a transaction snapshot whose lock the transaction already holds.
type handle struct {
	store *Store
	st    *state
}

func (h *handle) do(op, id string, fn func(st *state) error) error {
	if err := h.store.fault(op, id); err != nil {
		return err
	}
	if h.st != nil {
		return fn(h.st)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return fn(h.store.st)
}

func reposFor(h *handle) store.Repos {
	return store.Repos{
		Orgs:        &orgRepo{h},
		Members:     &memberRepo{h},
		Invitations: &invitationRepo{h},
		Transfers:   &transferRepo{h},
		Audit:       &auditRepo{h},
	}
}

type state struct {
	orgs        map[string]*orgdomain.Org
	members     map[string]*membershipdomain.Membership
	invitations map[string]*invitationdomain.Invitation
	transfers   map[string]*transferdomain.Transfer
	events      []*auditdomain.Event
}

func newState() *state {
	return &state{
		orgs:        make(map[string]*orgdomain.Org),
		members:     make(map[string]*membershipdomain.Membership),
		invitations: make(map[string]*invitationdomain.Invitation),
		transfers:   make(map[string]*transferdomain.Transfer),
	}
}

// clone copies every record struct. Pointer fields inside records (times, metadata) are shared
// and only ever reassigned, never written through.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.orgs {
		o := *v
		c.orgs[k] = &o
	}
	for k, v := range s.members {
		m := *v
		c.members[k] = &m
	}
	for k, v := range s.invitations {
		i := *v
		c.invitations[k] = &i
	}
	for k, v := range s.transfers {
		t := *v
		c.transfers[k] = &t
	}
	c.events = append(c.events, s.events...)
	return c
}

func (s *state) orgActive(id string) bool {
	o, ok := s.orgs[id]
	return ok && !o.Deleted()
}
