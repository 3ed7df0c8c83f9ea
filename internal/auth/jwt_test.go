package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNewVerifier(t *testing.T) {
	_, err := NewVerifier([]byte("short"))
	require.Error(t, err)

	v, err := NewVerifier(testSecret)
	require.NoError(t, err)
	require.NotNil(t, v)
}

func TestVerifier_Verify(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		token, err := IssueToken(testSecret, "telegram-bot", RoleFrontend, time.Hour)
		require.NoError(t, err)

		principal, err := v.Verify(token)
		require.NoError(t, err)
		require.Equal(t, "telegram-bot", principal.Subject)
		require.Equal(t, RoleFrontend, principal.Role)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := IssueToken(testSecret, "telegram-bot", RoleFrontend, -time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := IssueToken([]byte("ffffffffffffffffffffffffffffffff"), "telegram-bot", RoleAdmin, time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("unsigned token", func(t *testing.T) {
		claims := &Claims{
			Role: RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "mallory",
				Issuer:    Issuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.Error(t, err)
	})

	t.Run("unknown role", func(t *testing.T) {
		claims := &Claims{
			Role: Role("root"),
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "mallory",
				Issuer:    Issuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.ErrorContains(t, err, "unknown role")
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := &Claims{
			Role: RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "ops",
				Issuer:    "someone-else",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})
}

func TestIssueToken(t *testing.T) {
	_, err := IssueToken([]byte("short"), "bot", RoleFrontend, time.Hour)
	require.Error(t, err)

	_, err = IssueToken(testSecret, "bot", Role("root"), time.Hour)
	require.Error(t, err)
}

func TestVerifier_Middleware(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	var seen *Principal
	handler := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rooms/x", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/rooms/x", nil)
		req.Header.Set("Authorization", "Basic abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := IssueToken(testSecret, "payments", RoleBilling, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/v1/rooms/x", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		require.Equal(t, RoleBilling, seen.Role)
	})
}

func TestStaticPrincipal(t *testing.T) {
	var seen *Principal
	handler := StaticPrincipal(&Principal{Subject: "local", Role: RoleAdmin})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, RoleAdmin, seen.Role)
}
