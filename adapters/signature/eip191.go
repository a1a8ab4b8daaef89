package signature

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/ports"
)

// SchemeEIP191 lets Ethereum wallets answer challenges with personal_sign
const SchemeEIP191 = "eip191"

// EIP191 verifies events whose pubkey is an Ethereum address and whose
// signature is a recoverable personal_sign over the hex event id
type EIP191 struct{}

var _ ports.SignatureScheme = EIP191{}

// Name returns the scheme name
func (EIP191) Name() string { return SchemeEIP191 }

// Accepts reports whether pubkey is a 0x-prefixed address
func (EIP191) Accepts(pubkey string) bool {
	return strings.HasPrefix(pubkey, "0x") && common.IsHexAddress(pubkey)
}

// Digest uses the same canonical event hash as Nostr
func (EIP191) Digest(event *core.Event) ([]byte, error) {
	h := event.Hash()
	return h[:], nil
}

// Verify recovers the signer address and compares it with the claimed one
func (EIP191) Verify(event *core.Event, digest []byte) error {
	raw := event.Sig
	if !strings.HasPrefix(raw, "0x") {
		raw = "0x" + raw
	}
	sig, err := hexutil.Decode(raw)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}

	// Wallets emit v as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(hex.EncodeToString(digest)))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", core.ErrInvalidSignature)
	}

	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(event.Pubkey) {
		return core.ErrInvalidSignature
	}
	return nil
}
