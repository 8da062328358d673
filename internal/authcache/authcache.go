package authcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/johnjsyoo/sheet-snitch-bot/internal/tablestore"
)

// Role is an open capability tag resolved from an access code. The admin
// role is the only privileged level; the empty role means unauthorized.
type Role string

const (
	RoleNone  Role = ""
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Authorized reports whether the role grants lookup access at all.
func (r Role) Authorized() bool { return r != RoleNone }

// Privileged reports whether the role may see secrets unmasked.
func (r Role) Privileged() bool { return r == RoleAdmin }

// Auth log layout. One row per identity, updated in place on
// re-authentication.
const (
	identityColumn  = "user_id"
	roleColumn      = "role"
	lastLoginColumn = "last_login"

	timeLayout = "2006-01-02 15:04:05"
)

// AuthLogHeader is the header row the auth table is created with.
var AuthLogHeader = []string{identityColumn, roleColumn, lastLoginColumn}

var (
	// ErrRejected means the access code did not match any configured role.
	ErrRejected = errors.New("authcache: invalid access code")

	// ErrInvalidInput means the identity or code was empty.
	ErrInvalidInput = errors.New("authcache: invalid input")

	// ErrStoreRateLimited means the backing store throttled the call even
	// after the bounded retry; the caller should try again shortly.
	ErrStoreRateLimited = errors.New("authcache: store rate limited")

	// ErrStoreUnavailable is any other transient store failure.
	ErrStoreUnavailable = errors.New("authcache: store unavailable")
)

const defaultRetryDelay = 500 * time.Millisecond

// Service maintains the identity -> role cache as a read-through,
// write-through projection of the persisted auth log. An identity is only
// considered authorized if a persisted row exists; the cache itself is
// never the source of truth. Entries are added or overwritten, never
// evicted, for the life of the process.
type Service struct {
	store      tablestore.Store
	table      string
	codes      map[string]Role
	now        func() time.Time
	retryDelay time.Duration

	mu    sync.RWMutex
	roles map[string]Role
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithRetryDelay overrides the pause before the single rate-limit retry.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// NewService constructs the cache around a store handle, the auth table
// name and the immutable access-code map.
func NewService(store tablestore.Store, table string, codes map[string]Role, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("authcache: store is required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.New("authcache: table name is required")
	}
	normalized := make(map[string]Role, len(codes))
	for code, role := range codes {
		code = strings.TrimSpace(strings.ToLower(code))
		if code == "" || role == RoleNone {
			continue
		}
		normalized[code] = Role(strings.TrimSpace(strings.ToLower(string(role))))
	}
	if len(normalized) == 0 {
		return nil, errors.New("authcache: at least one access code is required")
	}
	s := &Service{
		store:      store,
		table:      table,
		codes:      normalized,
		now:        time.Now,
		retryDelay: defaultRetryDelay,
		roles:      make(map[string]Role),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authenticate validates the access code, persists the auth entry
// (update-in-place, append on first sight) and promotes the identity into
// the cache. The local cache write is authoritative immediately; no
// confirmation re-read of the eventually consistent store is attempted.
func (s *Service) Authenticate(ctx context.Context, identity, code string) (Role, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return RoleNone, fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	code = strings.TrimSpace(strings.ToLower(code))
	role, ok := s.codes[code]
	if !ok {
		return RoleNone, ErrRejected
	}

	if err := s.call(ctx, func() error {
		return s.store.EnsureTable(ctx, s.table, AuthLogHeader)
	}); err != nil {
		return RoleNone, convertStoreErr(err)
	}

	fields := tablestore.Row{
		roleColumn:      string(role),
		lastLoginColumn: s.now().UTC().Format(timeLayout),
	}
	err := s.call(ctx, func() error {
		return s.store.UpdateRow(ctx, s.table, identityColumn, identity, fields)
	})
	if errors.Is(err, tablestore.ErrRowNotFound) {
		entry := fields.Clone()
		entry[identityColumn] = identity
		err = s.call(ctx, func() error {
			return s.store.AppendRow(ctx, s.table, entry)
		})
	}
	if err != nil {
		return RoleNone, convertStoreErr(err)
	}

	s.mu.Lock()
	s.roles[identity] = role
	s.mu.Unlock()
	return role, nil
}

// ResolveRole returns the identity's role from the cache, falling back to
// one read-through scan of the persisted auth log on a miss. A missing
// table and a missing row both resolve to RoleNone without error.
func (s *Service) ResolveRole(ctx context.Context, identity string) (Role, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return RoleNone, nil
	}

	s.mu.RLock()
	role, ok := s.roles[identity]
	s.mu.RUnlock()
	if ok {
		return role, nil
	}

	var rows []tablestore.Row
	err := s.call(ctx, func() error {
		var inner error
		rows, inner = s.store.Rows(ctx, s.table)
		return inner
	})
	if errors.Is(err, tablestore.ErrTableNotFound) {
		return RoleNone, nil
	}
	if err != nil {
		return RoleNone, convertStoreErr(err)
	}

	role = roleFromRows(rows, identity)
	if !role.Authorized() {
		return RoleNone, nil
	}
	s.mu.Lock()
	s.roles[identity] = role
	s.mu.Unlock()
	return role, nil
}

// Preload seeds the cache from the persisted auth log in one pass so that
// warm identities incur zero store calls. Missing table means zero entries.
func (s *Service) Preload(ctx context.Context) error {
	var rows []tablestore.Row
	err := s.call(ctx, func() error {
		var inner error
		rows, inner = s.store.Rows(ctx, s.table)
		return inner
	})
	if errors.Is(err, tablestore.ErrTableNotFound) {
		return nil
	}
	if err != nil {
		return convertStoreErr(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		identity := strings.TrimSpace(row[identityColumn])
		role := Role(strings.TrimSpace(strings.ToLower(row[roleColumn])))
		if identity == "" || !role.Authorized() {
			continue
		}
		s.roles[identity] = role
	}
	return nil
}

// Cached reports whether the identity is already promoted into the cache.
func (s *Service) Cached(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[strings.TrimSpace(identity)]
	return ok
}

func roleFromRows(rows []tablestore.Row, identity string) Role {
	for _, row := range rows {
		if strings.TrimSpace(row[identityColumn]) != identity {
			continue
		}
		return Role(strings.TrimSpace(strings.ToLower(row[roleColumn])))
	}
	return RoleNone
}

// call runs one store operation with a single bounded retry when the store
// reports rate limiting. Never loops.
func (s *Service) call(ctx context.Context, fn func() error) error {
	err := fn()
	if !errors.Is(err, tablestore.ErrRateLimited) {
		return err
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(s.retryDelay):
	}
	return fn()
}

func convertStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tablestore.ErrRateLimited):
		return ErrStoreRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
