package signer

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LoginMessage is the text a wallet signs to obtain a session token. Every
// field is fixed by the server so the client cannot choose what it signs.
func LoginMessage(domain string, address common.Address, nonce string, issuedAt time.Time) []byte {
	return []byte(fmt.Sprintf(
		"%s wants you to sign in with your Ethereum account:\n%s\n\nNonce: %s\nIssued At: %s",
		domain, address.Hex(), nonce, issuedAt.UTC().Format(time.RFC3339),
	))
}
