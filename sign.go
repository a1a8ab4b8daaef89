package nostrgate

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/layer-3/nostr-gate/adapters/signature"
	"github.com/layer-3/nostr-gate/core"
)

// SignChallenge builds an auth event bound to challengeID and signs it with
// priv. kind defaults to core.KindClientAuth.
func SignChallenge(priv *btcec.PrivateKey, challengeID string, kind int, now time.Time) (*core.Event, error) {
	if kind == 0 {
		kind = core.KindClientAuth
	}
	event := &core.Event{
		CreatedAt: now.Unix(),
		Kind:      kind,
		Tags:      []core.Tag{{core.TagChallenge, challengeID}},
	}
	if err := signature.SignEvent(priv, event); err != nil {
		return nil, err
	}
	return event, nil
}
