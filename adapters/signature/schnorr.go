package signature

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/ports"
)

// SchemeSchnorr is the native Nostr scheme: BIP-340 over secp256k1
const SchemeSchnorr = "schnorr"

// Schnorr verifies events signed with x-only secp256k1 keys
type Schnorr struct{}

var _ ports.SignatureScheme = Schnorr{}

// Name returns the scheme name
func (Schnorr) Name() string { return SchemeSchnorr }

// Accepts reports whether pubkey is a 32-byte lowercase hex x-only key
func (Schnorr) Accepts(pubkey string) bool {
	return isLowerHex(pubkey, schnorr.PubKeyBytesLen)
}

// Digest returns the sha256 of the canonical event serialization
func (Schnorr) Digest(event *core.Event) ([]byte, error) {
	h := event.Hash()
	return h[:], nil
}

// Verify checks the BIP-340 signature over digest
func (Schnorr) Verify(event *core.Event, digest []byte) error {
	pubBytes, err := hex.DecodeString(event.Pubkey)
	if err != nil {
		return fmt.Errorf("decode pubkey: %w", core.ErrInvalidSignature)
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("parse pubkey: %w", core.ErrInvalidSignature)
	}

	if !isLowerHex(event.Sig, schnorr.SignatureSize) {
		return fmt.Errorf("signature must be %d bytes: %w", schnorr.SignatureSize, core.ErrInvalidSignature)
	}
	sigBytes, _ := hex.DecodeString(event.Sig)
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("parse signature: %w", core.ErrInvalidSignature)
	}

	if !sig.Verify(digest, pub) {
		return core.ErrInvalidSignature
	}
	return nil
}

// SignEvent sets Pubkey, ID and Sig on event using priv
func SignEvent(priv *btcec.PrivateKey, event *core.Event) error {
	event.Pubkey = hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))

	h := event.Hash()
	sig, err := schnorr.Sign(priv, h[:])
	if err != nil {
		return fmt.Errorf("failed to sign event: %w", err)
	}

	event.ID = hex.EncodeToString(h[:])
	event.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

func isLowerHex(s string, byteLen int) bool {
	if len(s) != 2*byteLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
