package http

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/LuisPassosRamos/IoT-Ecosystem/config"
	"github.com/LuisPassosRamos/IoT-Ecosystem/errors"
)

// authenticator issues and verifies bearer tokens for the single configured
// demo credential. The password is bcrypt-hashed at startup so the plaintext
// never sits in memory past construction.
type authenticator struct {
	username     string
	passwordHash []byte
	secret       []byte
	tokenTTL     time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func newAuthenticator(cfg config.AuthConfig, logger *slog.Logger) (*authenticator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.WrapFatal(err, "authenticator", "newAuthenticator", "hash credential")
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, errors.WrapFatal(err, "authenticator", "newAuthenticator", "generate signing secret")
		}
		logger.Warn("no JWT secret configured, generated an ephemeral one; tokens will not survive a restart")
	}

	return &authenticator{
		username:     cfg.Username,
		passwordHash: hash,
		secret:       secret,
		tokenTTL:     cfg.TokenTTL,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// verify checks a credential pair. Both comparisons always run so a wrong
// username costs the same as a wrong password.
func (a *authenticator) verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	return userOK && passOK
}

// issueToken signs a token for the authenticated user.
func (a *authenticator) issueToken(username string) (string, time.Time, error) {
	now := a.now().UTC()
	expiresAt := now.Add(a.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, errors.WrapFatal(err, "authenticator", "issueToken", "sign token")
	}
	return signed, expiresAt, nil
}

// verifyToken parses and validates a signed token, returning the subject.
func (a *authenticator) verifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errors.WrapInvalid(err, "authenticator", "verifyToken", "parse token")
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidPayload, "authenticator", "verifyToken", "missing subject")
	}
	return claims.Subject, nil
}

// middleware rejects requests without a valid bearer token.
func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if _, err := a.verifyToken(tokenString); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleLogin exchanges a credential pair for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.auth.verify(req.Username, req.Password) {
		s.logger.Warn("failed login attempt", "username", req.Username, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := s.auth.issueToken(req.Username)
	if err != nil {
		s.logger.Error("token issuance failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_at":   expiresAt.Format(time.RFC3339),
	})
}
