package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/manager"
	"github.com/GoPolymarket/polyfactory/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyfactory/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the session token claims. Subject is the checksummed address.
type Claims struct {
	jwt.RegisteredClaims
}

// AuthService turns a wallet signature over a server-issued nonce into a
// session token, and verifies those tokens.
type AuthService struct {
	nonces *manager.NonceManager
	secret []byte
	ttl    time.Duration
	issuer string
	domain string
	now    func() time.Time
}

func NewAuthService(nonces *manager.NonceManager, secret string, ttl time.Duration, issuer string) (*AuthService, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if issuer == "" {
		issuer = "polyfactory"
	}
	return &AuthService{
		nonces: nonces,
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		domain: issuer,
		now:    time.Now,
	}, nil
}

// LoginChallenge is what a client must sign.
type LoginChallenge struct {
	manager.Challenge
	Message string `json:"message"`
}

func (s *AuthService) Challenge(addr common.Address) LoginChallenge {
	c := s.nonces.Issue(addr)
	return LoginChallenge{
		Challenge: c,
		Message:   string(signer.LoginMessage(s.domain, addr, c.Nonce, c.IssuedAt)),
	}
}

// Session is an issued token.
type Session struct {
	Token     string         `json:"token"`
	Address   common.Address `json:"address"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func (s *AuthService) Login(addr common.Address, nonce, signature string) (Session, error) {
	c, err := s.nonces.Consume(addr, nonce)
	if err != nil {
		return Session{}, apperrors.New(apperrors.ErrNonce, err.Error(), err)
	}
	msg := signer.LoginMessage(s.domain, addr, c.Nonce, c.IssuedAt)
	if err := signer.Verify(msg, signature, addr); err != nil {
		return Session{}, apperrors.New(apperrors.ErrAuthFailed, "signature verification failed", err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   addr.Hex(),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, apperrors.New(apperrors.ErrInternal, "sign token", err)
	}
	return Session{Token: token, Address: addr, ExpiresAt: expiresAt}, nil
}

// Authenticate verifies a bearer token and returns the caller address.
func (s *AuthService) Authenticate(token string) (common.Address, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return common.Address{}, apperrors.NewAuthFailed("missing bearer token")
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return common.Address{}, apperrors.New(apperrors.ErrAuthFailed, "invalid token", err)
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || !common.IsHexAddress(c.Subject) {
		return common.Address{}, apperrors.NewAuthFailed("invalid token")
	}
	return common.HexToAddress(c.Subject), nil
}
