package gateway

import (
	"context"
	"errors"

	"github.com/johnjsyoo/sheet-snitch-bot/internal/audit"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/authcache"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/lookup"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/obs"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/stream"
)

// Status classifies the outcome of a gateway command. The transport renders
// these; the core never leaks raw store errors past this boundary.
type Status string

const (
	StatusGranted      Status = "granted"
	StatusRejected     Status = "rejected"
	StatusUnauthorized Status = "unauthorized"
	StatusOK           Status = "ok"
	StatusNoMatches    Status = "no_matches"
	StatusEmptyQuery   Status = "empty_query"
	StatusRetryLater   Status = "retry_later"
	StatusFailed       Status = "failed"
)

// AuthResult is the structured outcome of an authentication command.
type AuthResult struct {
	Status Status
	Role   authcache.Role
}

// LookupResult is the structured outcome of a lookup command.
type LookupResult struct {
	Status  Status
	Role    authcache.Role
	Matches []lookup.Match
}

// Service is the core facade the session transport calls into, one method
// per chat command. Every failure path returns a result; nothing here is
// fatal to the process.
type Service struct {
	cache  *authcache.Service
	engine *lookup.Engine
	feed   *stream.Stream
}

// NewService wires the authorization cache and the lookup engine together.
// The activity feed is optional.
func NewService(cache *authcache.Service, engine *lookup.Engine, feed *stream.Stream) (*Service, error) {
	if cache == nil {
		return nil, errors.New("gateway: authorization cache is required")
	}
	if engine == nil {
		return nil, errors.New("gateway: lookup engine is required")
	}
	return &Service{cache: cache, engine: engine, feed: feed}, nil
}

// HandleAuthenticate validates the access code for the identity and reports
// the granted role.
func (s *Service) HandleAuthenticate(ctx context.Context, identity, code string) AuthResult {
	role, err := s.cache.Authenticate(ctx, identity, code)
	switch {
	case err == nil:
		obs.ObserveAuthAttempt("granted")
		_ = audit.LogEvent(audit.WithIdentity(ctx, identity), "auth.granted", map[string]any{"role": string(role)})
		s.publish(stream.Event{Type: stream.EventAuthGranted, Identity: identity, Role: string(role), Result: "granted"})
		return AuthResult{Status: StatusGranted, Role: role}

	case errors.Is(err, authcache.ErrRejected), errors.Is(err, authcache.ErrInvalidInput):
		obs.ObserveAuthAttempt("rejected")
		_ = audit.LogEvent(audit.WithIdentity(ctx, identity), "auth.rejected", nil)
		s.publish(stream.Event{Type: stream.EventAuthRejected, Identity: identity, Result: "rejected"})
		return AuthResult{Status: StatusRejected}

	case errors.Is(err, authcache.ErrStoreRateLimited):
		obs.ObserveAuthAttempt("rate_limited")
		return AuthResult{Status: StatusRetryLater}

	default:
		obs.ObserveAuthAttempt("error")
		_ = audit.LogEvent(audit.WithIdentity(ctx, identity), "auth.failed", map[string]any{"error": err.Error()})
		return AuthResult{Status: StatusFailed}
	}
}

// HandleLookup resolves the identity's role and, only when authorized, scans
// the record table. The record table is never read on the unauthorized path.
func (s *Service) HandleLookup(ctx context.Context, identity, query string) LookupResult {
	role, err := s.cache.ResolveRole(ctx, identity)
	switch {
	case err == nil:
	case errors.Is(err, authcache.ErrStoreRateLimited):
		obs.ObserveLookup("rate_limited")
		return LookupResult{Status: StatusRetryLater}
	default:
		obs.ObserveLookup("error")
		return LookupResult{Status: StatusFailed}
	}

	if !role.Authorized() {
		obs.ObserveLookup("unauthorized")
		_ = audit.LogEvent(audit.WithIdentity(ctx, identity), "lookup.unauthorized", nil)
		return LookupResult{Status: StatusUnauthorized}
	}

	matches, err := s.engine.Search(ctx, role, query)
	switch {
	case errors.Is(err, lookup.ErrEmptyQuery):
		return LookupResult{Status: StatusEmptyQuery, Role: role}
	case errors.Is(err, lookup.ErrStoreRateLimited):
		obs.ObserveLookup("rate_limited")
		return LookupResult{Status: StatusRetryLater, Role: role}
	case err != nil:
		obs.ObserveLookup("error")
		return LookupResult{Status: StatusFailed, Role: role}
	}

	result := "ok"
	status := StatusOK
	if len(matches) == 0 {
		result = "no_matches"
		status = StatusNoMatches
	}
	obs.ObserveLookup(result)
	_ = audit.LogEvent(audit.WithIdentity(ctx, identity), "lookup.performed", map[string]any{
		"role":    string(role),
		"matches": len(matches),
	})
	s.publish(stream.Event{Type: stream.EventLookup, Identity: identity, Role: string(role), Result: result, Matches: len(matches)})

	return LookupResult{Status: status, Role: role, Matches: matches}
}

// Preload warms the authorization cache from the persisted auth log.
func (s *Service) Preload(ctx context.Context) error {
	return s.cache.Preload(ctx)
}

func (s *Service) publish(evt stream.Event) {
	if s.feed != nil {
		s.feed.Publish(evt)
	}
}
