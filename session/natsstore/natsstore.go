// Package natsstore persists sessions in a NATS JetStream Key-Value bucket.
// Values are msgpack-encoded; expiry is governed by the bucket's TTL.
package natsstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/JeanGrijp/csrfguard/session"
)

// DefaultBucket is the default bucket name for the NATS KV backed session store.
const DefaultBucket = "CSRF_SESSIONS"

// ErrUnsafeSessionID is returned for ids that are not valid NATS KV keys.
var ErrUnsafeSessionID = errors.New("natsstore: session id contains NATS-unsafe characters")

var _ session.Store = (*Store)(nil)

type Store struct {
	kv nats.KeyValue
}

// New opens the bucket described by conf, creating it when missing.
func New(conn *nats.Conn, conf nats.KeyValueConfig) (*Store, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	if conf.Bucket == "" {
		conf.Bucket = DefaultBucket
	}

	kv, err := js.KeyValue(conf.Bucket)
	switch {
	case errors.Is(err, nats.ErrBucketNotFound):
		kv, err = js.CreateKeyValue(&conf)
		if err != nil {
			return nil, fmt.Errorf("creating new KV bucket: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("opening KV bucket: %w", err)
	}
	return &Store{kv: kv}, nil
}

func (s *Store) Load(_ context.Context, id string) (session.Values, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	entry, err := s.kv.Get(id)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return session.Values{}, nil
		}
		return nil, fmt.Errorf("reading session from KV: %w", err)
	}

	var m map[string]any
	if err := msgpack.Unmarshal(entry.Value(), &m); err != nil || m == nil {
		return session.Values{}, nil
	}
	return session.Values(m), nil
}

func (s *Store) Save(_ context.Context, id string, v session.Values) error {
	if err := checkID(id); err != nil {
		return err
	}
	data, err := msgpack.Marshal(map[string]any(v))
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if _, err := s.kv.Put(id, data); err != nil {
		return fmt.Errorf("writing session to KV: %w", err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.kv.Delete(id); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("deleting session from KV: %w", err)
	}
	return nil
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, ".*> ") {
		return ErrUnsafeSessionID
	}
	return nil
}
