// Package memkv is an in-memory fake of kv.Store used by reconciler and
// registry tests in place of a real etcd/kine backend, since the spec
// treats the concrete KV as an external collaborator (spec §1).
package memkv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lurenjiayibingding/Swift/pkg/kv"
)

type service struct {
	address  string
	ttl      time.Duration
	deadline time.Time
}

// Store is a trivial, mutex-guarded map implementing kv.Store.
type Store struct {
	mu        sync.Mutex
	entries   map[string][]byte
	revision  int64
	revisions map[string]int64
	services  map[string]*service

	// Now lets tests control the clock for TTL expiry; defaults to
	// time.Now.
	Now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries:   map[string][]byte{},
		revisions: map[string]int64{},
		services:  map[string]*service{},
		Now:       time.Now,
	}
}

func (s *Store) Get(_ context.Context, key string) (kv.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *Store) getLocked(key string) (kv.Entry, bool, error) {
	v, ok := s.entries[key]
	if !ok {
		return kv.Entry{}, false, nil
	}
	return kv.Entry{Key: key, Value: append([]byte(nil), v...), ModifyIndex: s.revisionOf(key)}, true, nil
}

// revisions tracks the modify index per key separately from the global
// counter, so unrelated keys don't bump each other's CAS token.
func (s *Store) revisionOf(key string) int64 {
	rev, ok := s.revisions[key]
	if !ok {
		return 0
	}
	return rev
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Create(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return nil
	}
	s.entries[key] = []byte{}
	s.bumpLocked(key)
	return nil
}

func (s *Store) CAS(_ context.Context, key string, value []byte, modifyIndex int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revisionOf(key) != modifyIndex {
		return false, nil
	}
	s.entries[key] = append([]byte(nil), value...)
	s.bumpLocked(key)
	return true, nil
}

func (s *Store) DeleteTree(_ context.Context, prefix string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			delete(s.revisions, k)
		}
	}
	return true, nil
}

func (s *Store) RegisterService(_ context.Context, id string, address string, ttl int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := time.Duration(ttl) * time.Second
	s.services[id] = &service{address: address, ttl: d, deadline: s.Now().Add(d)}
	return nil
}

func (s *Store) PassTTL(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil
	}
	svc.deadline = s.Now().Add(svc.ttl)
	return nil
}

func (s *Store) CheckHealth(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return false, nil
	}
	return s.Now().Before(svc.deadline), nil
}

// SetHealth lets tests force a service's liveness verdict directly, useful
// for simulating the "unhealthy for 3h+" offline-pruning scenario without
// advancing a fake clock one TTL window at a time.
func (s *Store) SetHealth(id string, healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		svc = &service{}
		s.services[id] = svc
	}
	if healthy {
		svc.deadline = s.Now().Add(time.Hour)
	} else {
		svc.deadline = s.Now().Add(-time.Hour)
	}
}

func (s *Store) bumpLocked(key string) {
	if s.revisions == nil {
		s.revisions = map[string]int64{}
	}
	s.revision++
	s.revisions[key] = s.revision
}
