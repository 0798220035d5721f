package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

// Claims identify the reviewer behind a request.
type Claims struct {
	Reviewer string
	Token    string
}

type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// TokenAuthenticator maps static bearer tokens to reviewer names.
type TokenAuthenticator struct {
	DevToken string
	Tokens   map[string]string
}

const DevReviewer = "dev"

func NewTokenAuthenticator(devToken string, tokens map[string]string) *TokenAuthenticator {
	copied := make(map[string]string, len(tokens))
	for token, reviewer := range tokens {
		copied[token] = reviewer
	}
	return &TokenAuthenticator{DevToken: devToken, Tokens: copied}
}

func (a *TokenAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	bearer, err := extractBearer(r)
	if err != nil {
		return Claims{}, err
	}

	if a.DevToken != "" && equal(bearer, a.DevToken) {
		return Claims{Reviewer: DevReviewer, Token: bearer}, nil
	}

	for token, reviewer := range a.Tokens {
		if equal(bearer, token) {
			return Claims{Reviewer: reviewer, Token: bearer}, nil
		}
	}

	return Claims{}, ErrInvalidToken
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
