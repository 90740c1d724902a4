package kv

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	defaultDialTimeout      = 10 * time.Second
	defaultKeepAliveTime    = 30 * time.Second
	defaultKeepAliveTimeout = 10 * time.Second
)

// Config configures the etcd-backed Store, mirroring the subset of fields
// the teacher's pkg/etcd.getClientConfig builds a *clientv3.Config from.
type Config struct {
	Endpoints []string
	TLSConfig *tls.Config
	Username  string
	Password  string
}

// EtcdStore implements Store against a real etcd cluster using
// go.etcd.io/etcd/client/v3's Txn/Compare primitives for CAS and its Lease
// API for TTL-based health.
type EtcdStore struct {
	client *clientv3.Client

	// leases tracks the lease id registered for each locally-known service
	// id, so PassTTL can keep the right lease alive.
	leases map[string]clientv3.LeaseID
}

// NewEtcdStore dials etcd and returns a ready Store. Grounded on
// pkg/etcd/etcd.go's GetClient/getClientConfig.
func NewEtcdStore(ctx context.Context, cfg Config) (*EtcdStore, error) {
	ccfg := clientv3.Config{
		Endpoints:            cfg.Endpoints,
		Context:              ctx,
		DialTimeout:          defaultDialTimeout,
		DialKeepAliveTime:    defaultKeepAliveTime,
		DialKeepAliveTimeout: defaultKeepAliveTimeout,
		TLS:                  cfg.TLSConfig,
		Username:             cfg.Username,
		Password:             cfg.Password,
	}

	cli, err := clientv3.New(ccfg)
	if err != nil {
		return nil, errors.WithMessage(err, "dial etcd")
	}

	return &EtcdStore{client: cli, leases: map[string]clientv3.LeaseID{}}, nil
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}

// Get implements KV.
func (s *EtcdStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return Entry{}, false, errors.WithMessage(err, "get")
	}
	if len(resp.Kvs) == 0 {
		return Entry{}, false, nil
	}
	kv := resp.Kvs[0]
	return Entry{Key: string(kv.Key), Value: kv.Value, ModifyIndex: kv.ModRevision}, true, nil
}

// Keys implements KV.
func (s *EtcdStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, errors.WithMessage(err, "list keys")
	}
	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, string(kv.Key))
	}
	return keys, nil
}

// Create implements KV: an idempotent placeholder write.
func (s *EtcdStore) Create(ctx context.Context, key string) error {
	txn := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, ""))
	_, err := txn.Commit()
	if err != nil {
		return errors.WithMessage(err, "create")
	}
	return nil
}

// CAS implements KV.
func (s *EtcdStore) CAS(ctx context.Context, key string, value []byte, modifyIndex int64) (bool, error) {
	txn := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", modifyIndex)).
		Then(clientv3.OpPut(key, string(value)))
	resp, err := txn.Commit()
	if err != nil {
		return false, errors.WithMessage(err, "cas")
	}
	return resp.Succeeded, nil
}

// DeleteTree implements KV.
func (s *EtcdStore) DeleteTree(ctx context.Context, prefix string) (bool, error) {
	_, err := s.client.Delete(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return false, errors.WithMessage(err, "delete tree")
	}
	return true, nil
}

// RegisterService implements Registry by granting a lease with the given TTL
// and attaching a heartbeat key to it.
func (s *EtcdStore) RegisterService(ctx context.Context, id string, address string, ttl int) error {
	lease, err := s.client.Grant(ctx, int64(ttl))
	if err != nil {
		return errors.WithMessage(err, "grant lease")
	}

	key := serviceKey(id)
	if _, err := s.client.Put(ctx, key, address, clientv3.WithLease(lease.ID)); err != nil {
		return errors.WithMessage(err, "register service")
	}

	s.leases[id] = lease.ID
	logrus.Debugf("registered service %s with lease %x ttl %ds", id, lease.ID, ttl)
	return nil
}

// PassTTL implements Registry.
func (s *EtcdStore) PassTTL(ctx context.Context, id string) error {
	lease, ok := s.leases[id]
	if !ok {
		return errors.Errorf("no lease registered for %s", id)
	}
	_, err := s.client.KeepAliveOnce(ctx, lease)
	if err != nil {
		return errors.WithMessage(err, "keep lease alive")
	}
	return nil
}

// CheckHealth implements Registry: a service is healthy iff its lease still
// has time remaining, reflecting the most recent heartbeat within one TTL
// window (spec §4.1).
func (s *EtcdStore) CheckHealth(ctx context.Context, id string) (bool, error) {
	lease, ok := s.leases[id]
	if !ok {
		// Not a lease we granted ourselves (e.g. another process' member):
		// fall back to checking the heartbeat key still exists. A key
		// attached to an expired lease is reaped by etcd, so presence is
		// sufficient to mean "alive within this TTL window".
		_, present, err := s.Get(ctx, serviceKey(id))
		if err != nil {
			return false, errors.WithMessage(err, "check health")
		}
		return present, nil
	}

	resp, err := s.client.TimeToLive(ctx, lease)
	if err != nil {
		return false, errors.WithMessage(err, "time to live")
	}
	return resp.TTL > 0, nil
}

func serviceKey(id string) string {
	return "Swift/_services/" + id
}
