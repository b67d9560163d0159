package main

import (
	"bytes"
	"testing"

	"github.com/GoPolymarket/polyfactory/internal/factory"
	"github.com/GoPolymarket/polyfactory/internal/market"
	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/GoPolymarket/polyfactory/internal/reputation"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestPrintState(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	fac := common.HexToAddress("0x00000000000000000000000000000000000000fa")
	alice := common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	state := service.State{
		Ledger: &reputation.Snapshot{
			Owner:   owner,
			Bounds:  reputation.Bounds{Min: -100, Max: 1000},
			Scores:  map[common.Address]int64{alice: 20, bob: -15},
			Writers: []common.Address{fac},
		},
		Factory: &factory.Snapshot{Address: fac, Owner: owner, Threshold: 5},
		Markets: []market.Snapshot{{
			Creator:         alice,
			State:           model.StateResolved,
			Question:        "Will it rain?",
			TotalPool:       uint256.NewInt(150),
			ReputationDelta: 10,
		}},
	}

	var buf bytes.Buffer
	printState(&buf, state, 10)
	out := buf.String()

	assert.Contains(t, out, fac.Hex()+" (factory)")
	assert.Contains(t, out, "threshold 5")
	assert.Regexp(t, alice.Hex()+`\s+20\s+can_create=yes`, out)
	assert.Regexp(t, bob.Hex()+`\s+-15\s+can_create=no`, out)
	assert.Contains(t, out, "  any")
	assert.Regexp(t, `RESOLVED\s+150\s+\+10\s+Will it rain\?`, out)
	assert.Less(t, bytes.Index(buf.Bytes(), []byte(alice.Hex())), bytes.Index(buf.Bytes(), []byte(bob.Hex())))
}

func TestPrintStateEmpty(t *testing.T) {
	var buf bytes.Buffer
	printState(&buf, service.State{}, 10)
	assert.Equal(t, "no deployment persisted\n", buf.String())
}
