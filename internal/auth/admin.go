package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// Admin checks Authorization headers against the admin credentials:
// the shared admin token, a session token, or HTTP Basic.
type Admin struct {
	token        string
	user         string
	password     string
	passwordHash string
	sessions     *TokenManager
}

// AdminOptions configures an Admin checker. Basic auth is enabled only when User and one of
// Password or PasswordHash are set.
type AdminOptions struct {
	Token        string
	User         string
	Password     string
	PasswordHash string
	Sessions     *TokenManager
}

// NewAdmin creates an admin credential checker
func NewAdmin(opts AdminOptions) *Admin {
	return &Admin{
		token:        opts.Token,
		user:         strings.TrimSpace(opts.User),
		password:     opts.Password,
		passwordHash: opts.PasswordHash,
		sessions:     opts.Sessions,
	}
}

// Sessions returns the session token manager, nil when login is disabled
func (a *Admin) Sessions() *TokenManager {
	return a.sessions
}

// BasicEnabled reports whether HTTP Basic credentials are configured
func (a *Admin) BasicEnabled() bool {
	return a.user != "" && (a.passwordHash != "" || strings.TrimSpace(a.password) != "")
}

// Authorize returns the admin subject for a valid header and false otherwise
func (a *Admin) Authorize(header string) (string, bool) {
	if token, ok := BearerToken(header); ok {
		if SecretEqual(token, a.token) {
			return "token", true
		}
		if a.sessions != nil {
			if claims, err := a.sessions.Parse(token); err == nil {
				return claims.Username, true
			}
		}
		return "", false
	}

	if user, pass, ok := BasicCredentials(header); ok && a.CheckBasic(user, pass) {
		return user, true
	}
	return "", false
}

// CheckBasic verifies a username and password pair
func (a *Admin) CheckBasic(user, pass string) bool {
	if !a.BasicEnabled() {
		return false
	}
	if !SecretEqual(user, a.user) {
		return false
	}
	if a.passwordHash != "" {
		return ComparePassword(a.passwordHash, pass) == nil
	}
	return SecretEqual(pass, a.password)
}

// SecretEqual compares in constant time; an empty expected value never matches.
func SecretEqual(given, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(expected)) == 1
}

// BearerToken extracts the token of a "Bearer <token>" header
func BearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// BasicCredentials decodes a "Basic <base64(user:pass)>" header
func BasicCredentials(header string) (string, string, bool) {
	encoded, ok := strings.CutPrefix(header, "Basic ")
	if !ok {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", false
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", false
	}
	return user, pass, true
}
