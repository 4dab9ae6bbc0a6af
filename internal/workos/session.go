package workos

import (
	"context"
	"errors"
	"time"
)

// Session is the handle returned by LoadSealedSession. It holds the unsealed
// access/refresh token pair and answers authenticate/refresh against it.
type Session struct {
	client  *Client
	payload sessionPayload
}

type sessionPayload struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Authenticate checks the unsealed access token. The token's signature was
// established by WorkOS when the cookie was sealed; here only presence and
// expiry are checked, no signature re-verification.
func (s *Session) Authenticate(ctx context.Context) (AuthenticateResult, error) {
	if s.payload.AccessToken == "" {
		return AuthenticateResult{Reason: ReasonNoSessionCookie}, nil
	}

	claims, err := DecodeClaims(s.payload.AccessToken)
	if err != nil && !errors.Is(err, ErrMissingClaims) {
		return AuthenticateResult{Reason: ReasonInvalidJWT}, nil
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(time.Now()) {
		return AuthenticateResult{Reason: ReasonSessionExpired}, nil
	}
	return AuthenticateResult{Authenticated: true, AccessToken: s.payload.AccessToken}, nil
}

// Refresh exchanges the refresh token for a fresh access token. Exactly one
// round trip; the caller decides whether a failed refresh is terminal.
func (s *Session) Refresh(ctx context.Context) (AuthenticateResult, error) {
	if s.payload.RefreshToken == "" {
		return AuthenticateResult{Reason: ReasonInvalidSessionCookie}, nil
	}

	refreshed, err := s.client.refreshSession(ctx, s.payload.RefreshToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return AuthenticateResult{Reason: ReasonInvalidRefreshToken}, nil
		}
		return AuthenticateResult{}, err
	}
	if refreshed.AccessToken == "" {
		return AuthenticateResult{Reason: ReasonInvalidRefreshToken}, nil
	}

	s.payload.AccessToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		s.payload.RefreshToken = refreshed.RefreshToken
	}
	return AuthenticateResult{Authenticated: true, AccessToken: refreshed.AccessToken}, nil
}
