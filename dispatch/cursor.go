package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// minCursorSecretLen is the smallest accepted signing secret; shorter secrets
// are refused outright rather than silently weakening the MAC.
const minCursorSecretLen = 32

var errInvalidCursor = errors.New("dispatch: invalid cursor")

// CursorCodec signs and verifies opaque pagination cursors so clients cannot
// forge offsets.
type CursorCodec struct {
	secret []byte
}

// NewCursorCodec creates a codec, failing closed on weak secrets.
func NewCursorCodec(secret []byte) (*CursorCodec, error) {
	if len(secret) < minCursorSecretLen {
		return nil, fmt.Errorf("dispatch: cursor secret must be at least %d bytes", minCursorSecretLen)
	}
	return &CursorCodec{secret: secret}, nil
}

// Encode produces a signed cursor for an offset.
func (c *CursorCodec) Encode(offset int) string {
	payload := strconv.Itoa(offset)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." +
		base64.RawURLEncoding.EncodeToString(c.sign(payload))
}

// Decode verifies a cursor and returns its offset.
func (c *CursorCodec) Decode(cursor string) (int, error) {
	payloadPart, macPart, found := strings.Cut(cursor, ".")
	if !found {
		return 0, errInvalidCursor
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return 0, errInvalidCursor
	}
	mac, err := base64.RawURLEncoding.DecodeString(macPart)
	if err != nil {
		return 0, errInvalidCursor
	}
	if !hmac.Equal(mac, c.sign(string(payload))) {
		return 0, errInvalidCursor
	}
	offset, err := strconv.Atoi(string(payload))
	if err != nil || offset < 0 {
		return 0, errInvalidCursor
	}
	return offset, nil
}

func (c *CursorCodec) sign(payload string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
