package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtExpiry      = 24 * time.Hour
	bcryptCost     = bcrypt.MinCost // API keys are random, the hash only keeps them out of memory dumps
	maxNameLen     = 16
	authRateWindow = 60 * time.Second
	maxAuthFails   = 10
)

var (
	ErrInvalidKey   = errors.New("invalid API key")
	ErrInvalidToken = errors.New("invalid token")
	ErrRateLimited  = errors.New("too many failed attempts, try again later")
)

// Auth checks API keys and issues session tokens
type Auth struct {
	devMode   bool
	keyHashes [][]byte
	jwtSecret []byte

	// Failed attempts per IP
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// pilotClaims is the JWT payload
type pilotClaims struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// NewAuth hashes the configured keys and loads the token secret
func NewAuth(cfg AppConfig, db *DB) (*Auth, error) {
	a := &Auth{
		devMode: cfg.DevMode,
		rateMap: make(map[string]*rateEntry),
	}
	for _, key := range cfg.APIKeys {
		h, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash api key: %w", err)
		}
		a.keyHashes = append(a.keyHashes, h)
	}

	if cfg.JWTSecret != "" {
		a.jwtSecret = []byte(cfg.JWTSecret)
	} else {
		secret, err := loadOrCreateSecret(db)
		if err != nil {
			return nil, err
		}
		a.jwtSecret = secret
	}
	return a, nil
}

// loadOrCreateSecret loads the JWT secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB) ([]byte, error) {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b, nil
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate JWT secret: %w", err)
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			log.Printf("warning: could not persist JWT secret: %v", err)
		}
	}
	return secret, nil
}

// DevMode reports whether every key is accepted
func (a *Auth) DevMode() bool {
	return a.devMode
}

// CheckKey reports whether key is one of the configured API keys
func (a *Auth) CheckKey(key string) bool {
	if a.devMode {
		return true
	}
	if key == "" {
		return false
	}
	for _, h := range a.keyHashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			return true
		}
	}
	return false
}

// Login validates a key for the given IP, applying the failure rate limit
func (a *Auth) Login(key, ip string) error {
	if a.limited(ip) {
		return ErrRateLimited
	}
	if !a.CheckKey(key) {
		a.recordFailure(ip)
		return ErrInvalidKey
	}
	return nil
}

// IssueToken signs a session token for a validated key
func (a *Auth) IssueToken(key, name string) (string, error) {
	now := time.Now()
	claims := pilotClaims{
		Key:  key,
		Name: SanitizeName(name),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// ValidateToken checks a session token and returns its key and pilot name
func (a *Auth) ValidateToken(tokenStr string) (string, string, error) {
	claims := &pilotClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", "", ErrInvalidToken
	}
	// Keys revoked since the token was issued stop working
	if !a.CheckKey(claims.Key) {
		return "", "", ErrInvalidKey
	}
	return claims.Key, claims.Name, nil
}

// BearerToken extracts the token from an Authorization header
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func (a *Auth) limited(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()
	entry, ok := a.rateMap[ip]
	if !ok || time.Now().After(entry.ResetAt) {
		return false
	}
	return entry.Count >= maxAuthFails
}

func (a *Auth) recordFailure(ip string) {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(authRateWindow)}
		return
	}
	entry.Count++
}

// SanitizeName trims a display name to maxNameLen runes and falls back to a
// generated one. Invalid UTF-8 is dropped.
func SanitizeName(name string) string {
	name = strings.TrimSpace(strings.ToValidUTF8(name, ""))
	if name == "" {
		return GeneratePilotName()
	}
	if runes := []rune(name); len(runes) > maxNameLen {
		name = strings.TrimSpace(string(runes[:maxNameLen]))
	}
	return name
}
