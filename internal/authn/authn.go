// Package authn turns an inbound request into an authenticated user with a
// resolved access scope, or a typed authentication failure.
package authn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"relay/proxy/internal/access"
	"relay/proxy/internal/store"
	"relay/proxy/internal/workos"
)

// SessionCookieName is the provider's session cookie, by convention.
const SessionCookieName = "workos-session"

// AuthenticationError is the single failure kind for the whole flow. The
// HTTP layer maps it uniformly to 401; Message and Cause are for server logs
// only and never echoed to the client.
type AuthenticationError struct {
	Message string
	Cause   error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Cause)
	}
	return "authentication failed: " + e.Message
}

func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

func autherr(message string, cause error) *AuthenticationError {
	return &AuthenticationError{Message: message, Cause: cause}
}

// User is the canonical identity for one request. ID is the internal user
// id; claims fields are display-only.
type User struct {
	ID             string
	ExternalID     string
	Email          string
	OrganizationID string
	Role           string
}

type UserWithContext struct {
	User
	Scope access.Context
}

// Session is the provider-side session handle (satisfied by
// *workos.Session).
type Session interface {
	Authenticate(ctx context.Context) (workos.AuthenticateResult, error)
	Refresh(ctx context.Context) (workos.AuthenticateResult, error)
}

// SessionLoader unseals a cookie value into a Session. The cookie password
// is bound by the caller at construction time.
type SessionLoader func(sealed string) (Session, error)

type UserStore interface {
	UserByExternalID(ctx context.Context, externalID string) (store.User, error)
}

type ContextResolver interface {
	Resolve(ctx context.Context, userID string) (access.Context, error)
}

type Authenticator struct {
	loadSession SessionLoader
	users       UserStore
	resolver    ContextResolver
}

func NewAuthenticator(loadSession SessionLoader, users UserStore, resolver ContextResolver) *Authenticator {
	return &Authenticator{loadSession: loadSession, users: users, resolver: resolver}
}

// Authenticate runs the full flow: cookie -> sealed session -> authenticate
// (with at most one provider-driven refresh) -> claims -> internal user ->
// access scope. Every failure is an *AuthenticationError.
func (a *Authenticator) Authenticate(ctx context.Context, header http.Header) (UserWithContext, error) {
	cookieHeader := header.Get("Cookie")
	if cookieHeader == "" {
		return UserWithContext{}, autherr("no cookie header", nil)
	}

	sealed, ok := sessionCookie(cookieHeader, SessionCookieName)
	if !ok {
		return UserWithContext{}, autherr("no session cookie", nil)
	}

	session, err := a.loadSession(sealed)
	if err != nil {
		return UserWithContext{}, autherr("failed to load sealed session", err)
	}

	result, err := session.Authenticate(ctx)
	if err != nil {
		return UserWithContext{}, autherr("session authenticate failed", err)
	}
	if !result.Authenticated {
		if result.Reason == workos.ReasonNoSessionCookie {
			return UserWithContext{}, autherr("no session cookie provided", nil)
		}
		// One refresh, only for reasons that can recover. Anything short of
		// an authenticated refresh is terminal.
		result, err = session.Refresh(ctx)
		if err != nil || !result.Authenticated {
			return UserWithContext{}, autherr("session expired", err)
		}
	}

	claims, err := workos.DecodeClaims(result.AccessToken)
	if err != nil {
		return UserWithContext{}, autherr("invalid JWT payload", err)
	}

	row, err := a.users.UserByExternalID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return UserWithContext{}, autherr("user not found", nil)
		}
		return UserWithContext{}, autherr("user lookup failed", err)
	}

	scope, err := a.resolver.Resolve(ctx, row.ID)
	if err != nil {
		return UserWithContext{}, autherr("access context resolution failed", err)
	}

	return UserWithContext{
		User: User{
			ID:             row.ID,
			ExternalID:     claims.Subject,
			Email:          claims.Email,
			OrganizationID: claims.OrganizationID,
			Role:           claims.Role,
		},
		Scope: scope,
	}, nil
}

// sessionCookie extracts a named cookie from a raw Cookie header. The value
// is everything after the first '=', so base64url values containing '='
// survive intact.
func sessionCookie(header, name string) (string, bool) {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		key, value, found := strings.Cut(part, "=")
		if found && key == name {
			return value, true
		}
	}
	return "", false
}
