package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid service token")

// verifyServiceToken checks an HS256 bearer token minted with the shared
// service secret and returns the calling service's name from the sub claim.
// Service tokens authenticate sibling backend services, not end users; user
// identity on the websocket side comes from register frames.
func verifyServiceToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	caller, ok := claims["sub"].(string)
	if !ok || caller == "" {
		return "", ErrInvalidToken
	}

	return caller, nil
}

func (s *Server) requireServiceToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing bearer token"})
			return
		}

		caller, err := verifyServiceToken(strings.TrimPrefix(header, prefix), s.secret)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid service token"})
			return
		}

		s.logger.Debug("internal api request", "caller", caller, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
