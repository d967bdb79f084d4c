package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingClaims = errors.New("missing required claims")
)

type Verifier interface {
	VerifyToken(tokenString string) (*User, error)
}

// JWTVerifier validates bearer tokens either against a remote JWKS or a
// shared HMAC secret.
type JWTVerifier struct {
	jwks    *keyfunc.JWKS
	secret  []byte
	keyfunc jwt.Keyfunc
	mu      sync.RWMutex
}

func NewJWKSVerifier(jwksURL string) (*JWTVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	return &JWTVerifier{
		jwks:    jwks,
		keyfunc: jwks.Keyfunc,
	}, nil
}

func NewHMACVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("hmac secret is required")
	}
	v := &JWTVerifier{secret: []byte(secret)}
	v.keyfunc = func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	}
	return v, nil
}

func (v *JWTVerifier) VerifyToken(tokenString string) (*User, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	token, err := jwt.Parse(tokenString, v.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMissingClaims
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrMissingClaims)
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)

	return &User{
		ID:    userID,
		Email: email,
		Name:  name,
	}, nil
}

func (v *JWTVerifier) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}
