// Package manager keeps short-lived per-address state for wallet login.
package manager

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var (
	ErrUnknownNonce = errors.New("nonce unknown or already used")
	ErrNonceExpired = errors.New("nonce expired")
)

// Nonce layout: 16 random bytes, 8 bytes of issue time, 16 bytes of tag.
const (
	nonceBody = 24
	nonceTag  = 16
	nonceLen  = nonceBody + nonceTag
)

// Challenge is an issued login nonce.
type Challenge struct {
	Address   common.Address `json:"address"`
	Nonce     string         `json:"nonce"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// NonceManager issues single-use login nonces. A nonce carries its issue
// time and a tag keyed to this manager and the address, so issuing keeps no
// state and any number of challenges per address can be outstanding. Only
// redeemed nonces are remembered, until they would have expired anyway.
type NonceManager struct {
	ttl time.Duration
	now func() time.Time
	key []byte

	mu   sync.Mutex
	used map[string]time.Time
}

func NewNonceManager(ttl time.Duration) *NonceManager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("nonce key: " + err.Error())
	}
	return &NonceManager{
		ttl:  ttl,
		now:  time.Now,
		key:  key,
		used: make(map[string]time.Time),
	}
}

func (m *NonceManager) tag(addr common.Address, body []byte) []byte {
	return crypto.Keccak256(m.key, addr.Bytes(), body)[:nonceTag]
}

func (m *NonceManager) Issue(addr common.Address) Challenge {
	now := m.now().UTC().Truncate(time.Second)
	id := uuid.New()

	raw := make([]byte, nonceLen)
	copy(raw, id[:])
	binary.BigEndian.PutUint64(raw[16:nonceBody], uint64(now.Unix()))
	copy(raw[nonceBody:], m.tag(addr, raw[:nonceBody]))

	return Challenge{
		Address:   addr,
		Nonce:     hex.EncodeToString(raw),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
}

// Consume redeems nonce for addr. A nonce is spent on the first attempt,
// successful or not, so a failed signature check cannot be retried with it.
func (m *NonceManager) Consume(addr common.Address, nonce string) (Challenge, error) {
	raw, err := hex.DecodeString(nonce)
	if err != nil || len(raw) != nonceLen {
		return Challenge{}, ErrUnknownNonce
	}
	body := raw[:nonceBody]
	if subtle.ConstantTimeCompare(raw[nonceBody:], m.tag(addr, body)) != 1 {
		return Challenge{}, ErrUnknownNonce
	}
	issuedAt := time.Unix(int64(binary.BigEndian.Uint64(body[16:])), 0).UTC()
	c := Challenge{
		Address:   addr,
		Nonce:     nonce,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(m.ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, spent := m.used[nonce]; spent {
		return Challenge{}, ErrUnknownNonce
	}
	if !m.now().Before(c.ExpiresAt) {
		return Challenge{}, ErrNonceExpired
	}
	m.used[nonce] = c.ExpiresAt
	return c, nil
}

// Prune forgets spent nonces that have expired and returns how many were
// removed.
func (m *NonceManager) Prune() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for nonce, exp := range m.used {
		if !now.Before(exp) {
			delete(m.used, nonce)
			n++
		}
	}
	return n
}
