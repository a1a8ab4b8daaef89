package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	// KindMetadata is the replaceable profile event kind
	KindMetadata = 0
	// KindClientAuth is the client authentication event kind
	KindClientAuth = 22242
	// KindHTTPAuth is the HTTP authentication event kind
	KindHTTPAuth = 27235

	// TagChallenge names the tag that binds an event to a challenge
	TagChallenge = "challenge"
)

// Tag is a single event tag: a name followed by values.
type Tag []string

// Event is a signed Nostr event. It is the assertion a client submits to
// prove control of Pubkey, and the record relays return for profile queries.
type Event struct {
	ID        string `json:"id"`
	Pubkey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// TagValue returns the first value of the first tag called name.
func (e *Event) TagValue(name string) (string, bool) {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}

// ChallengeRef returns the challenge id the event is bound to: the challenge
// tag when present, otherwise the content.
func (e *Event) ChallengeRef() string {
	if v, ok := e.TagValue(TagChallenge); ok {
		return v
	}
	return strings.TrimSpace(e.Content)
}

// Serialize returns the canonical form the event id is computed over:
// [0,<pubkey>,<created_at>,<kind>,<tags>,<content>] with minimal escaping.
func (e *Event) Serialize() []byte {
	var b strings.Builder
	b.Grow(128 + len(e.Content))

	b.WriteString(`[0,`)
	writeJSONString(&b, e.Pubkey)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(e.CreatedAt, 10))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(e.Kind))
	b.WriteString(`,[`)
	for i, tag := range e.Tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for j, v := range tag {
			if j > 0 {
				b.WriteByte(',')
			}
			writeJSONString(&b, v)
		}
		b.WriteByte(']')
	}
	b.WriteString(`],`)
	writeJSONString(&b, e.Content)
	b.WriteByte(']')

	return []byte(b.String())
}

// Hash returns the sha256 digest of the canonical serialization.
func (e *Event) Hash() [32]byte {
	return sha256.Sum256(e.Serialize())
}

// ComputeID returns the hex event id.
func (e *Event) ComputeID() string {
	h := e.Hash()
	return hex.EncodeToString(h[:])
}

// writeJSONString escapes only what the canonical form requires:
// quote, backslash and the control characters. Other bytes pass through.
func writeJSONString(b *strings.Builder, s string) {
	const hexDigits = "0123456789abcdef"

	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if c < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0xf])
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
}
