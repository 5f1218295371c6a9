package authn

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/docflow/edms/pkg/lifecycle"
)

// JWTConfig configures the bearer token resolver.
type JWTConfig struct {
	// PublicKeyPath is the path to the PEM-encoded RSA public key for RS256 verification.
	// If empty, tokens are parsed but NOT verified (trusted proxy mode).
	PublicKeyPath string `yaml:"publicKeyPath" json:"publicKeyPath"`

	// Issuer is the expected token issuer (iss claim). If empty, issuer is not validated.
	Issuer string `yaml:"issuer" json:"issuer"`

	// Audience is the expected token audience (aud claim). If empty, audience is not validated.
	Audience string `yaml:"audience" json:"audience"`

	// Claim names. Defaults: role, department, permissions.
	RoleClaim        string `yaml:"roleClaim" json:"roleClaim"`
	DepartmentClaim  string `yaml:"departmentClaim" json:"departmentClaim"`
	PermissionsClaim string `yaml:"permissionsClaim" json:"permissionsClaim"`
}

// JWTResolver reads the actor from an "Authorization: Bearer" token.
type JWTResolver struct {
	cfg       JWTConfig
	publicKey *rsa.PublicKey
}

// NewJWTResolver loads the verification key, if any, and returns a resolver.
func NewJWTResolver(cfg JWTConfig, logger *slog.Logger) (*JWTResolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RoleClaim == "" {
		cfg.RoleClaim = "role"
	}
	if cfg.DepartmentClaim == "" {
		cfg.DepartmentClaim = "department"
	}
	if cfg.PermissionsClaim == "" {
		cfg.PermissionsClaim = "permissions"
	}

	res := &JWTResolver{cfg: cfg}
	if cfg.PublicKeyPath == "" {
		logger.Warn("jwt resolver: no public key configured, tokens parsed without verification (trusted proxy mode)")
		return res, nil
	}

	keyData, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read JWT public key from %s: %w", cfg.PublicKeyPath, err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("decode PEM block from %s", cfg.PublicKeyPath)
	}
	parsedKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaKey, ok := parsedKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA (got %T)", parsedKey)
	}
	res.publicKey = rsaKey
	logger.Info("jwt resolver: using RS256 verification", "keyPath", cfg.PublicKeyPath)
	return res, nil
}

func (j *JWTResolver) Resolve(r *http.Request) (lifecycle.Actor, error) {
	token := bearerToken(r)
	if token == "" {
		return lifecycle.Actor{}, ErrUnauthenticated
	}
	claims, err := j.parse(token)
	if err != nil {
		return lifecycle.Actor{}, err
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		sub, _ = claims["preferred_username"].(string)
	}
	if sub == "" {
		return lifecycle.Actor{}, errors.New("token has no subject")
	}
	rawRole, _ := claims[j.cfg.RoleClaim].(string)
	role, err := parseRole(rawRole)
	if err != nil {
		return lifecycle.Actor{}, err
	}
	dept, _ := claims[j.cfg.DepartmentClaim].(string)

	return lifecycle.Actor{
		ID:          sub,
		Role:        role,
		Department:  dept,
		Permissions: permissionSet(stringsClaim(claims[j.cfg.PermissionsClaim])),
	}, nil
}

func (j *JWTResolver) parse(tokenString string) (jwt.MapClaims, error) {
	var opts []jwt.ParserOption
	if j.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.cfg.Issuer))
	}
	if j.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(j.cfg.Audience))
	}

	var (
		token *jwt.Token
		err   error
	)
	if j.publicKey != nil {
		token, err = jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return j.publicKey, nil
		}, opts...)
	} else {
		// ParseUnverified skips claim validation, so expiry, issuer and
		// audience are checked separately.
		token, _, err = jwt.NewParser(opts...).ParseUnverified(tokenString, jwt.MapClaims{})
		if err == nil {
			err = jwt.NewValidator(opts...).Validate(token.Claims)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("JWT parse error: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// stringsClaim accepts either a JSON array of strings or a space-separated
// string, the two shapes scope-like claims arrive in.
func stringsClaim(v any) []string {
	switch val := v.(type) {
	case string:
		return strings.Fields(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
