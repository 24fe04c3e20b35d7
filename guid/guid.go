// Package guid defines the endpoint identity types shared by every
// component: a participant prefix plus an entity id within the participant.
package guid

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// PrefixSize is the wire size of a participant prefix in bytes.
const PrefixSize = 12

// Prefix identifies a participant. Immutable for the participant's lifetime.
type Prefix [PrefixSize]byte

// EntityID identifies an endpoint within its participant.
type EntityID [4]byte

// GUID is the globally unique identifier of a writer or reader.
type GUID struct {
	Prefix Prefix
	Entity EntityID
}

// NewPrefix derives a fresh participant prefix from a random UUID.
func NewPrefix() Prefix {
	id := uuid.New()
	var p Prefix
	copy(p[:], id[:PrefixSize])
	return p
}

func (p Prefix) String() string {
	return hex.EncodeToString(p[:])
}

func (e EntityID) String() string {
	return hex.EncodeToString(e[:])
}

func (g GUID) String() string {
	return fmt.Sprintf("%s.%s", g.Prefix, g.Entity)
}

// EntityFromIndex packs a participant-local endpoint counter into an EntityID.
func EntityFromIndex(index uint32) EntityID {
	return EntityID{
		byte(index >> 24),
		byte(index >> 16),
		byte(index >> 8),
		byte(index),
	}
}
