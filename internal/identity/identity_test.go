package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/apierr"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/config"
)

const (
	testSecret   = "test-secret"
	testIssuer   = "gateway"
	testAudience = "clients"
)

func signToken(t *testing.T, c claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func baseClaims(tenantID uuid.UUID) claims {
	return claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: tenantID.String(),
		UserID:   "user-1",
	}
}

func newResolver() *Resolver {
	return NewResolver(config.AuthConfig{
		JWTSecret:   testSecret,
		JWTIssuer:   testIssuer,
		JWTAudience: testAudience,
	}, config.MockConfig{})
}

func TestResolveSignedTokenHappyPath(t *testing.T) {
	tenantID := uuid.New()
	tok := signToken(t, baseClaims(tenantID))

	req := httptest.NewRequest(http.MethodPost, "/text/clean", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	rc, err := newResolver().Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rc.TenantID != tenantID {
		t.Errorf("tenant_id = %v, want %v", rc.TenantID, tenantID)
	}
	if rc.UserID != "user-1" {
		t.Errorf("user_id = %q", rc.UserID)
	}
	if rc.InteractionID == uuid.Nil {
		t.Error("expected a freshly minted interaction_id")
	}
	if rc.TraceID == "" {
		t.Error("expected a minted trace_id")
	}
}

func TestResolveSignedTokenExpired(t *testing.T) {
	c := baseClaims(uuid.New())
	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	tok := signToken(t, c)

	req := httptest.NewRequest(http.MethodPost, "/text/clean", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	_, err := newResolver().Resolve(req)
	if err == nil {
		t.Fatal("expected an error for an expired token")
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.CodeAuthExpired {
		t.Fatalf("expected AUTH_EXPIRED, got %v", err)
	}
}

func TestResolvePreservesCallerProvidedTraceID(t *testing.T) {
	traceID := uuid.New().String()
	c := baseClaims(uuid.New())
	c.TraceID = traceID
	tok := signToken(t, c)

	req := httptest.NewRequest(http.MethodPost, "/text/clean", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	rc, err := newResolver().Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rc.TraceID != traceID {
		t.Errorf("trace_id = %q, want %q", rc.TraceID, traceID)
	}
}

func TestResolveLegacyHeaders(t *testing.T) {
	r := NewResolver(config.AuthConfig{AllowLegacyHeaderAuth: true}, config.MockConfig{})
	tenantID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/text/clean", nil)
	req.Header.Set("X-Tenant-ID", tenantID.String())
	req.Header.Set("X-User-ID", "legacy-user")

	rc, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rc.TenantID != tenantID || rc.UserID != "legacy-user" {
		t.Errorf("unexpected context: %+v", rc)
	}
}

func TestResolveMissingAuthFails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/text/clean", nil)
	_, err := newResolver().Resolve(req)
	if err == nil {
		t.Fatal("expected AUTH_MISSING")
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.CodeAuthMissing {
		t.Fatalf("expected AUTH_MISSING, got %v", err)
	}
}

func TestTokenLogPrefixTruncates(t *testing.T) {
	got := TokenLogPrefix("Bearer abcdefghijklmnop")
	if got != "abcdefgh" {
		t.Errorf("got %q, want 8-char prefix", got)
	}
}
