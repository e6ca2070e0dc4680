package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var errWrongTokenType = errors.New("unexpected token type")

type AuthClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

type Tokens struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      *clock.Clock
}

func NewTokens(secret, issuer string, accessTTL, refreshTTL time.Duration, clk *clock.Clock) *Tokens {
	return &Tokens{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      clk,
	}
}

func (t *Tokens) Sign(userID int64, typ string) (string, error) {
	now := t.clock.Now()
	ttl := t.accessTTL
	if typ == TokenTypeRefresh {
		ttl = t.refreshTTL
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthClaims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   strconv.FormatInt(userID, 10),
		},
	})
	return token.SignedString(t.secret)
}

// Verify checks signature, expiry, issuer and type of token and returns its subject.
func (t *Tokens) Verify(token, typ string) (int64, error) {
	claims := &AuthClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		return 0, err
	}
	if claims.Type != typ {
		return 0, errWrongTokenType
	}

	return strconv.ParseInt(claims.Subject, 10, 64)
}

func (t *Tokens) RefreshTTL() time.Duration {
	return t.refreshTTL
}

// hashToken is what gets stored for a refresh token. Tokens are longer than the 72 bytes
// bcrypt accepts.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
