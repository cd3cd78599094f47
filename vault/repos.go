package vault

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	brokererrors "github.com/nutrilink/broker/internal/errors"
	"github.com/nutrilink/broker/keystore"
)

// Logical key prefixes. The keystore hashes the whole logical key, so these
// only namespace record types, they never reach Redis in the clear.
const (
	sessionKeyPrefix = "session:"
	stateKeyPrefix   = "oauth-state:"
	clientKeyPrefix  = "client:"
	codeKeyPrefix    = "auth-code:"
)

// Vault bundles the typed repositories over one keystore.
type Vault struct {
	Sessions *Sessions
	States   *States
	Clients  *Clients
	Codes    *Codes
}

func New(store *keystore.Store) *Vault {
	return &Vault{
		Sessions: &Sessions{store: store},
		States:   &States{store: store},
		Clients:  &Clients{store: store},
		Codes:    &Codes{store: store},
	}
}

// Sessions persists Session records under SessionTTL. Put is also how a
// session is mutated in place: re-storing resets the TTL, which is the
// intended sliding-expiry behaviour for active users.
type Sessions struct {
	store *keystore.Store
}

func (r *Sessions) Put(ctx context.Context, s *Session) error {
	return put(ctx, r.store, sessionKeyPrefix+s.ID, s, SessionTTL, "Sessions.Put")
}

func (r *Sessions) Get(ctx context.Context, id string) (*Session, error) {
	s, found, err := get[Session](ctx, r.store, sessionKeyPrefix+id, "Sessions.Get")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrap(brokererrors.ErrSessionNotFound, "[Sessions.Get]")
	}
	return s, nil
}

func (r *Sessions) Delete(ctx context.Context, id string) error {
	return errors.Wrap(r.store.Delete(ctx, sessionKeyPrefix+id), "[Sessions.Delete]")
}

// States persists in-flight three-legged dance state, keyed by the upstream
// request token. Consume is the only read: state is single-use.
type States struct {
	store *keystore.Store
}

func (r *States) Put(ctx context.Context, st *OAuthState) error {
	return put(ctx, r.store, stateKeyPrefix+st.RequestToken, st, StateTTL, "States.Put")
}

func (r *States) Consume(ctx context.Context, requestToken string) (*OAuthState, error) {
	st, found, err := consume[OAuthState](ctx, r.store, stateKeyPrefix+requestToken, "States.Consume")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrap(brokererrors.ErrNotFound, "[States.Consume]")
	}
	return st, nil
}

// Clients persists registered OAuth 2.0 clients. Records are never mutated
// after registration.
type Clients struct {
	store *keystore.Store
}

func (r *Clients) Put(ctx context.Context, c *Client) error {
	return put(ctx, r.store, clientKeyPrefix+c.ID, c, ClientTTL, "Clients.Put")
}

func (r *Clients) Get(ctx context.Context, id string) (*Client, error) {
	c, found, err := get[Client](ctx, r.store, clientKeyPrefix+id, "Clients.Get")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrap(brokererrors.ErrInvalidClient, "[Clients.Get]")
	}
	return c, nil
}

// Codes persists single-use authorization codes. An expired, reused or
// never-issued code all look identical to the caller: absent.
type Codes struct {
	store *keystore.Store
}

func (r *Codes) Put(ctx context.Context, code string, ac *AuthCode) error {
	return put(ctx, r.store, codeKeyPrefix+code, ac, CodeTTL, "Codes.Put")
}

func (r *Codes) Consume(ctx context.Context, code string) (*AuthCode, error) {
	ac, found, err := consume[AuthCode](ctx, r.store, codeKeyPrefix+code, "Codes.Consume")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrap(brokererrors.ErrInvalidGrant, "[Codes.Consume]")
	}
	return ac, nil
}

func put[T any](ctx context.Context, store *keystore.Store, key string, record *T, ttl time.Duration, caller string) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrapf(err, "[%s] marshal", caller)
	}
	return errors.Wrapf(store.Put(ctx, key, data, ttl), "[%s]", caller)
}

func get[T any](ctx context.Context, store *keystore.Store, key, caller string) (*T, bool, error) {
	data, found, err := store.Get(ctx, key)
	if err != nil {
		return nil, false, errors.Wrapf(err, "[%s]", caller)
	}
	if !found {
		return nil, false, nil
	}
	return unmarshal[T](data, caller)
}

func consume[T any](ctx context.Context, store *keystore.Store, key, caller string) (*T, bool, error) {
	data, found, err := store.Consume(ctx, key)
	if err != nil {
		return nil, false, errors.Wrapf(err, "[%s]", caller)
	}
	if !found {
		return nil, false, nil
	}
	return unmarshal[T](data, caller)
}

func unmarshal[T any](data []byte, caller string) (*T, bool, error) {
	var record T
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, errors.Wrapf(err, "[%s] unmarshal", caller)
	}
	return &record, true, nil
}
