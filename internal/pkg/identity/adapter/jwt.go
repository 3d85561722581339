package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v4"

	"studychat/internal/pkg/identity/port"
)

// JWTVerifier validates HS256 bearer tokens issued by the auth service and
// resolves the subject's display profile through the directory. When no
// directory is wired (DB-less mode) the profile fields come from the token
// claims themselves.
type JWTVerifier struct {
	secret    []byte
	directory port.Directory
}

// NewJWTVerifierFromEnv reads the shared secret from JWT_SECRET.
func NewJWTVerifierFromEnv(directory port.Directory) (*JWTVerifier, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("identity: JWT_SECRET environment variable is not set")
	}
	return NewJWTVerifier([]byte(secret), directory), nil
}

func NewJWTVerifier(secret []byte, directory port.Directory) *JWTVerifier {
	return &JWTVerifier{secret: secret, directory: directory}
}

var _ port.Verifier = (*JWTVerifier)(nil)

type accessClaims struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (*port.Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", port.ErrInvalidCredential)
	}

	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", port.ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", port.ErrInvalidCredential)
	}

	if v.directory != nil {
		ident, err := v.directory.FindByID(ctx, claims.Subject)
		if err != nil {
			return nil, err
		}
		return ident, nil
	}
	return &port.Identity{ID: claims.Subject, Name: claims.Name, Avatar: claims.Avatar}, nil
}

// RecordingVerifier wraps a claims-backed verifier and copies every
// successfully verified identity into a MemDirectory. DB-less mode uses it
// so conversation decoration and name search have profiles to read.
type RecordingVerifier struct {
	inner port.Verifier
	dir   *MemDirectory
}

func NewRecordingVerifier(inner port.Verifier, dir *MemDirectory) *RecordingVerifier {
	return &RecordingVerifier{inner: inner, dir: dir}
}

var _ port.Verifier = (*RecordingVerifier)(nil)

func (v *RecordingVerifier) Verify(ctx context.Context, token string) (*port.Identity, error) {
	ident, err := v.inner.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	v.dir.Put(*ident)
	return ident, nil
}
