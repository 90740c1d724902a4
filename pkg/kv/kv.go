// Package kv is the thin façade over the external KV store that the rest of
// the cluster coordination core treats as its single source of truth (spec
// §4.1). It exposes exactly the primitives the reconcilers need: Get, Keys,
// Create, CAS and DeleteTree, plus a service registry for TTL-based health.
package kv

import "context"

// Entry is one key's value together with the opaque CAS token the store
// handed back for it. CAS is the only safe way to mutate a key; any
// observed failure means a stale ModifyIndex and forces a re-read.
type Entry struct {
	Key         string
	Value       []byte
	ModifyIndex int64
}

// KV is the façade the reconcilers depend on. Concrete implementations wrap
// a real client (pkg/kv's etcd-backed EtcdStore); tests use pkg/kv/memkv.
type KV interface {
	// Get reads key. ok is false if the key is absent.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)
	// Keys lists every key stored under prefix, in store order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Create writes key with an empty value if it does not already exist.
	// It is idempotent: an existing key is not an error.
	Create(ctx context.Context, key string) error
	// CAS writes value to key conditioned on the stored ModifyIndex still
	// equalling modifyIndex. It returns false (not an error) on conflict.
	CAS(ctx context.Context, key string, value []byte, modifyIndex int64) (bool, error)
	// DeleteTree removes every key under prefix.
	DeleteTree(ctx context.Context, prefix string) (bool, error)
}

// Registry is the service-registry façade used for TTL-based liveness.
type Registry interface {
	// RegisterService registers id with the given heartbeat TTL.
	RegisterService(ctx context.Context, id string, address string, ttl int) error
	// PassTTL refreshes the TTL heartbeat for id.
	PassTTL(ctx context.Context, id string) error
	// CheckHealth reports the most recently observed liveness verdict for id.
	CheckHealth(ctx context.Context, id string) (bool, error)
}

// Store bundles KV and Registry, since every production backend implements
// both against the same underlying cluster.
type Store interface {
	KV
	Registry
}
