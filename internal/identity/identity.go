// Package identity resolves an inbound HTTP request into a RequestContext,
// per §4.1: signed-token verification with an optional legacy dev-mode
// header fallback.
package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/apierr"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/config"
)

// RequestContext is resolved once per request and flows read-only through
// every downstream call.
type RequestContext struct {
	TenantID      uuid.UUID
	UserID        string
	PgUserID      string
	UserName      string
	AccountID     string
	InteractionID uuid.UUID
	TraceID       string
}

// claims is the expected shape of a verified signed identity token.
type claims struct {
	jwt.RegisteredClaims
	TenantID      string `json:"tenant_id"`
	UserID        string `json:"user_id"`
	PgUserID      string `json:"pg_user_id"`
	UserName      string `json:"user_name"`
	AccountID     string `json:"account_id"`
	InteractionID string `json:"interaction_id"`
	TraceID       string `json:"trace_id"`
}

// clockSkew is the allowed leeway on the exp claim.
const clockSkew = 30 * time.Second

// TokenLogPrefix returns at most the first 8 characters of a bearer token
// (after the scheme prefix) for logging. Callers must never log the full
// token.
func TokenLogPrefix(authHeader string) string {
	raw := strings.TrimPrefix(authHeader, "Bearer ")
	if len(raw) > 8 {
		return raw[:8]
	}
	return raw
}

// Resolver resolves RequestContext values from inbound HTTP requests.
type Resolver struct {
	cfg config.AuthConfig
	mock config.MockConfig
}

// NewResolver builds a Resolver from the auth and mock sections of cfg.
func NewResolver(auth config.AuthConfig, mock config.MockConfig) *Resolver {
	return &Resolver{cfg: auth, mock: mock}
}

// Resolve implements §4.1: try signed-token mode first, then legacy header
// mode if enabled, else fail AUTH_MISSING. interaction_id is always freshly
// minted for requests resolved here; internal callers (the upload worker)
// that need to carry a stored interaction_id should construct RequestContext
// directly rather than calling Resolve.
func (r *Resolver) Resolve(req *http.Request) (RequestContext, error) {
	authHeader := req.Header.Get("Authorization")
	if authHeader != "" {
		return r.resolveSignedToken(authHeader)
	}
	if r.cfg.AllowLegacyHeaderAuth {
		return r.resolveLegacyHeaders(req)
	}
	return RequestContext{}, apierr.New(apierr.CodeAuthMissing, "missing Authorization header")
}

func (r *Resolver) resolveSignedToken(authHeader string) (RequestContext, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return RequestContext{}, apierr.New(apierr.CodeAuthInvalid, "malformed authorization header")
	}
	raw := strings.TrimPrefix(authHeader, prefix)

	if r.cfg.JWTSecret == "" {
		return RequestContext{}, apierr.New(apierr.CodeAuthInvalid, "signed-token auth is not configured")
	}

	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierr.New(apierr.CodeAuthInvalid, "unexpected signing method")
		}
		return []byte(r.cfg.JWTSecret), nil
	},
		jwt.WithIssuer(r.cfg.JWTIssuer),
		jwt.WithAudience(r.cfg.JWTAudience),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		if strings.Contains(err.Error(), "expired") {
			return RequestContext{}, apierr.Wrap(apierr.CodeAuthExpired, "token expired", err)
		}
		return RequestContext{}, apierr.Wrap(apierr.CodeAuthInvalid, "token verification failed", err)
	}
	if !token.Valid {
		return RequestContext{}, apierr.New(apierr.CodeAuthInvalid, "token invalid")
	}

	if c.TenantID == "" || c.UserID == "" {
		return RequestContext{}, apierr.New(apierr.CodeValidationMissingField, "tenant_id and user_id claims are required")
	}
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return RequestContext{}, apierr.Wrap(apierr.CodeValidationInvalidUUID, "tenant_id claim is not a valid uuid", err)
	}

	return buildContext(tenantID, c.UserID, c.PgUserID, c.UserName, c.AccountID, c.TraceID)
}

func (r *Resolver) resolveLegacyHeaders(req *http.Request) (RequestContext, error) {
	tenantRaw := req.Header.Get("X-Tenant-ID")
	userID := req.Header.Get("X-User-ID")
	if tenantRaw == "" {
		tenantRaw = r.mock.TenantID
	}
	if userID == "" {
		userID = r.mock.UserID
	}
	if tenantRaw == "" || userID == "" {
		return RequestContext{}, apierr.New(apierr.CodeAuthMissing, "missing X-Tenant-ID/X-User-ID headers")
	}
	tenantID, err := uuid.Parse(tenantRaw)
	if err != nil {
		return RequestContext{}, apierr.Wrap(apierr.CodeValidationInvalidUUID, "X-Tenant-ID is not a valid uuid", err)
	}

	return buildContext(tenantID, userID, "", "", req.Header.Get("X-Account-ID"), req.Header.Get("X-Trace-Id"))
}

// buildContext applies the trace_id/interaction_id minting policy shared by
// both auth modes.
func buildContext(tenantID uuid.UUID, userID, pgUserID, userName, accountID, traceIDIn string) (RequestContext, error) {
	traceID := traceIDIn
	if traceID != "" {
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.NewString()
		}
	} else {
		traceID = uuid.NewString()
	}

	return RequestContext{
		TenantID:      tenantID,
		UserID:        userID,
		PgUserID:      pgUserID,
		UserName:      userName,
		AccountID:     accountID,
		InteractionID: uuid.New(),
		TraceID:       traceID,
	}, nil
}
