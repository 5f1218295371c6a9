package authn

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docflow/edms/pkg/lifecycle"
)

func TestActorContextRoundTrip(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	want := lifecycle.Actor{ID: "alice", Role: lifecycle.RoleManager, Department: "quality"}
	got, ok := ActorFromContext(WithActor(context.Background(), want))
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestHeaderResolver(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    lifecycle.Actor
		wantErr bool
	}{
		{
			name:    "missing user",
			headers: map[string]string{HeaderRole: "admin"},
			wantErr: true,
		},
		{
			name:    "defaults to user role",
			headers: map[string]string{HeaderUser: "alice", HeaderDepartment: "quality"},
			want:    lifecycle.Actor{ID: "alice", Role: lifecycle.RoleUser, Department: "quality"},
		},
		{
			name: "full identity with duplicate grants",
			headers: map[string]string{
				HeaderUser:        " bob ",
				HeaderRole:        "Manager",
				HeaderDepartment:  "quality",
				HeaderPermissions: "approve_documents, MANAGE_DOCUMENTS,approve_documents,,",
			},
			want: lifecycle.Actor{
				ID: "bob", Role: lifecycle.RoleManager, Department: "quality",
				Permissions: []lifecycle.Permission{lifecycle.PermApproveDocuments, lifecycle.PermManageDocuments},
			},
		},
		{
			name:    "unknown role",
			headers: map[string]string{HeaderUser: "eve", HeaderRole: "superuser"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/documents", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			got, err := HeaderResolver{}.Resolve(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMiddleware(t *testing.T) {
	var seen lifecycle.Actor
	handler := Middleware(HeaderResolver{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthenticated")

	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set(HeaderUser, "alice")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "alice", seen.ID)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(lifecycle.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tc := range []struct {
		actor *lifecycle.Actor
		want  int
	}{
		{nil, http.StatusForbidden},
		{&lifecycle.Actor{ID: "bob", Role: lifecycle.RoleManager}, http.StatusForbidden},
		{&lifecycle.Actor{ID: "root", Role: lifecycle.RoleAdmin}, http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, "/audit/events", nil)
		if tc.actor != nil {
			req = req.WithContext(WithActor(req.Context(), *tc.actor))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code)
	}
}

func writePublicKey(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "jwt.pub")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))
	return path
}

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestJWTResolver_Verified(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	res, err := NewJWTResolver(JWTConfig{
		PublicKeyPath: writePublicKey(t, key),
		Issuer:        "https://sso.example.com",
		Audience:      "edms",
	}, nil)
	require.NoError(t, err)

	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub":         "carol",
			"iss":         "https://sso.example.com",
			"aud":         "edms",
			"exp":         time.Now().Add(time.Hour).Unix(),
			"role":        "manager",
			"department":  "finance",
			"permissions": []any{"approve_documents", "create_versions"},
		}
	}

	got, err := res.Resolve(bearerRequest(sign(base())))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Actor{
		ID: "carol", Role: lifecycle.RoleManager, Department: "finance",
		Permissions: []lifecycle.Permission{lifecycle.PermApproveDocuments, lifecycle.PermCreateVersions},
	}, got)

	scoped := base()
	scoped["permissions"] = "view_all_documents manage_documents"
	got, err = res.Resolve(bearerRequest(sign(scoped)))
	require.NoError(t, err)
	assert.True(t, got.Has(lifecycle.PermManageDocuments))

	wrongIssuer := base()
	wrongIssuer["iss"] = "https://evil.example.com"
	_, err = res.Resolve(bearerRequest(sign(wrongIssuer)))
	assert.Error(t, err)

	expired := base()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	_, err = res.Resolve(bearerRequest(sign(expired)))
	assert.Error(t, err)

	hmac, err := jwt.NewWithClaims(jwt.SigningMethodHS256, base()).SignedString([]byte("shared-secret"))
	require.NoError(t, err)
	_, err = res.Resolve(bearerRequest(hmac))
	assert.Error(t, err)

	_, err = res.Resolve(httptest.NewRequest(http.MethodGet, "/documents", nil))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestJWTResolver_TrustedProxyMode(t *testing.T) {
	res, err := NewJWTResolver(JWTConfig{}, nil)
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"preferred_username": "dave",
		"role":               "admin",
	}).SignedString([]byte("irrelevant"))
	require.NoError(t, err)

	got, err := res.Resolve(bearerRequest(token))
	require.NoError(t, err)
	assert.Equal(t, "dave", got.ID)
	assert.Equal(t, lifecycle.RoleAdmin, got.Role)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "user"}).SignedString([]byte("x"))
	require.NoError(t, err)
	_, err = res.Resolve(bearerRequest(noSubject))
	assert.Error(t, err)
}

func TestJWTResolver_TrustedProxyModeChecksClaims(t *testing.T) {
	res, err := NewJWTResolver(JWTConfig{Issuer: "https://sso.example.com", Audience: "edms"}, nil)
	require.NoError(t, err)

	unsigned := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("irrelevant"))
		require.NoError(t, err)
		return s
	}
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub":  "dave",
			"iss":  "https://sso.example.com",
			"aud":  "edms",
			"exp":  time.Now().Add(time.Hour).Unix(),
			"role": "user",
		}
	}

	got, err := res.Resolve(bearerRequest(unsigned(base())))
	require.NoError(t, err)
	assert.Equal(t, "dave", got.ID)

	for name, mutate := range map[string]func(jwt.MapClaims){
		"wrong issuer":   func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" },
		"wrong audience": func(c jwt.MapClaims) { c["aud"] = "billing" },
		"expired":        func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() },
	} {
		claims := base()
		mutate(claims)
		_, err := res.Resolve(bearerRequest(unsigned(claims)))
		assert.Error(t, err, name)
	}
}

func TestNewJWTResolver_BadKey(t *testing.T) {
	_, err := NewJWTResolver(JWTConfig{PublicKeyPath: filepath.Join(t.TempDir(), "missing.pem")}, nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a pem"), 0o600))
	_, err = NewJWTResolver(JWTConfig{PublicKeyPath: path}, nil)
	assert.Error(t, err)
}
