package messagestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

// CanonicalMaterialJSON returns the canonical JSON bytes used for hashing:
// the message with its client-side read flag and fake timestamp cleared.
func CanonicalMaterialJSON(msg servermsg.ServerMessage) ([]byte, error) {
	msg.ClientRead = false
	msg.FakeTimestamp = nil
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "message store: canonical json")
	}
	return b, nil
}

// ContentHash computes the lowercase-hex SHA-256 hash over the canonical material.
func ContentHash(msg servermsg.ServerMessage) (string, error) {
	b, err := CanonicalMaterialJSON(msg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
