// Package proto defines the wire types exchanged between relay endpoints:
// the relay envelope carrying an application payload plus provenance
// metadata, the event frame used by stream transports, and the edit record
// persisted by the local log.
package proto

import (
	"golang.org/x/crypto/sha3"
)

const (
	ProtoVersion = "editmesh/1"

	MaxFrameSize     = 1 << 20
	SoftMaxFrameSize = 64 << 10
)

// EditKey maps an application-supplied reference id to the fixed-size key
// used by the dedup cache.
func EditKey(refID string) [32]byte {
	return sha3.Sum256([]byte("editmesh:ref:" + refID))
}
