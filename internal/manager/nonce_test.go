package manager

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceIsSingleUse(t *testing.T) {
	m := NewNonceManager(time.Minute)
	addr := common.HexToAddress("0xa11ce")

	c := m.Issue(addr)
	assert.Len(t, c.Nonce, 2*nonceLen)

	got, err := m.Consume(addr, c.Nonce)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = m.Consume(addr, c.Nonce)
	assert.ErrorIs(t, err, ErrUnknownNonce)
}

func TestReissueKeepsOutstandingChallenges(t *testing.T) {
	m := NewNonceManager(time.Minute)
	addr := common.HexToAddress("0xa11ce")

	mine := m.Issue(addr)
	// anyone can ask for challenges on any address
	for i := 0; i < 100; i++ {
		m.Issue(addr)
	}
	latest := m.Issue(addr)

	_, err := m.Consume(addr, mine.Nonce)
	require.NoError(t, err)
	_, err = m.Consume(addr, latest.Nonce)
	require.NoError(t, err)
}

func TestNonceIsBoundToAddress(t *testing.T) {
	m := NewNonceManager(time.Minute)
	victim := common.HexToAddress("0xa11ce")
	attacker := common.HexToAddress("0xbad")

	c := m.Issue(attacker)
	_, err := m.Consume(victim, c.Nonce)
	assert.ErrorIs(t, err, ErrUnknownNonce)

	forged := strings.Repeat("0", 2*nonceLen)
	_, err = m.Consume(victim, forged)
	assert.ErrorIs(t, err, ErrUnknownNonce)
	_, err = m.Consume(victim, "not-hex")
	assert.ErrorIs(t, err, ErrUnknownNonce)

	other := NewNonceManager(time.Minute)
	_, err = other.Consume(attacker, c.Nonce)
	assert.ErrorIs(t, err, ErrUnknownNonce, "nonces only redeem where they were issued")

	_, err = m.Consume(attacker, c.Nonce)
	assert.NoError(t, err)
}

func TestNonceExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewNonceManager(time.Minute)
	m.now = func() time.Time { return now }
	addr := common.HexToAddress("0xa11ce")

	c := m.Issue(addr)
	spent := m.Issue(common.HexToAddress("0xb0b"))
	_, err := m.Consume(spent.Address, spent.Nonce)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Prune())

	now = now.Add(time.Minute)
	_, err = m.Consume(addr, c.Nonce)
	assert.ErrorIs(t, err, ErrNonceExpired)

	assert.Equal(t, 1, m.Prune())
	_, err = m.Consume(spent.Address, spent.Nonce)
	assert.ErrorIs(t, err, ErrNonceExpired, "pruned nonces stay unusable")
}
