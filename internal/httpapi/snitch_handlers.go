package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/johnjsyoo/sheet-snitch-bot/internal/gateway"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/session"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/tablestore"
)

type authRequest struct {
	Identity string `json:"identity"`
	Code     string `json:"code"`
}

type authResponse struct {
	Status    string    `json:"status"`
	Role      string    `json:"role,omitempty"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type lookupRequest struct {
	Query string `json:"query"`
}

type matchPayload struct {
	Fields         tablestore.Row `json:"fields"`
	SecretRevealed bool           `json:"secret_revealed"`
}

type lookupResponse struct {
	Status  string         `json:"status"`
	Role    string         `json:"role,omitempty"`
	Matches []matchPayload `json:"matches"`
}

func (a *API) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req authRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		writeError(w, r, http.StatusBadRequest, "identity is required")
		return
	}

	res := a.gateway.HandleAuthenticate(r.Context(), identity, req.Code)
	switch res.Status {
	case gateway.StatusGranted:
		token, err := session.Issue(identity, string(res.Role), a.sessionTTL)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "session issue failed")
			return
		}
		writeJSON(w, http.StatusOK, authResponse{
			Status:    string(res.Status),
			Role:      string(res.Role),
			Token:     token,
			ExpiresAt: time.Now().UTC().Add(a.sessionTTL),
		})
	case gateway.StatusRejected:
		writeError(w, r, http.StatusUnauthorized, "access code rejected")
	case gateway.StatusRetryLater:
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusServiceUnavailable, "store busy, retry later")
	default:
		writeError(w, r, http.StatusInternalServerError, "authentication failed")
	}
}

func (a *API) handleLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	identity := identityFromContext(r.Context())
	if identity == "" {
		writeError(w, r, http.StatusUnauthorized, "session required")
		return
	}

	var req lookupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res := a.gateway.HandleLookup(r.Context(), identity, req.Query)
	switch res.Status {
	case gateway.StatusOK, gateway.StatusNoMatches:
		matches := make([]matchPayload, 0, len(res.Matches))
		for _, m := range res.Matches {
			matches = append(matches, matchPayload{Fields: m.Fields, SecretRevealed: m.SecretRevealed})
		}
		writeJSON(w, http.StatusOK, lookupResponse{
			Status:  string(res.Status),
			Role:    string(res.Role),
			Matches: matches,
		})
	case gateway.StatusEmptyQuery:
		writeError(w, r, http.StatusBadRequest, "query is required")
	case gateway.StatusUnauthorized:
		writeError(w, r, http.StatusForbidden, "not authorized, authenticate first")
	case gateway.StatusRetryLater:
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusServiceUnavailable, "store busy, retry later")
	default:
		writeError(w, r, http.StatusInternalServerError, "lookup failed")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
