package proto

import (
	"encoding/json"
	"fmt"
)

// Envelope wraps one application payload with relay metadata. Origin is
// empty on first publish and carries the identity of the forwarding
// endpoint on every relayed copy; a stamped copy is terminal and must not
// be re-emitted. RefID, when present, is the application-level identifier
// used for dedup.
type Envelope struct {
	Version string          `json:"v,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	RefID   string          `json:"ref_id,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
}

func NewEnvelope(body []byte, refID string) Envelope {
	return Envelope{
		Version: ProtoVersion,
		RefID:   refID,
		Body:    json.RawMessage(body),
	}
}

// Stamped reports whether this copy already passed through the relay.
func (e Envelope) Stamped() bool {
	return e.Origin != ""
}

// WithOrigin returns a stamped copy for forwarding. The receiver is not
// mutated; the engine never re-stamps an already stamped envelope.
func (e Envelope) WithOrigin(identity string) Envelope {
	out := e
	out.Origin = identity
	if len(e.Body) > 0 {
		out.Body = append(json.RawMessage(nil), e.Body...)
	}
	return out
}

func EncodeEnvelope(e Envelope) ([]byte, error) {
	if e.Version == "" {
		e.Version = ProtoVersion
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("envelope too large")
	}
	return data, nil
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, err
	}
	if e.Version != "" && e.Version != ProtoVersion {
		return Envelope{}, fmt.Errorf("unexpected proto version: %s", e.Version)
	}
	return e, nil
}
