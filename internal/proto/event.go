package proto

import (
	"encoding/json"
	"fmt"
)

// EventFrame is the unit carried by stream transports: a named event (the
// flattened route key or a control event name) plus its payload.
type EventFrame struct {
	Version string          `json:"v,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func EncodeEventFrame(f EventFrame) ([]byte, error) {
	if f.Event == "" {
		return nil, fmt.Errorf("missing event name")
	}
	if f.Version == "" {
		f.Version = ProtoVersion
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("event frame too large")
	}
	return data, nil
}

func DecodeEventFrame(data []byte) (EventFrame, error) {
	var f EventFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return EventFrame{}, err
	}
	if f.Event == "" {
		return EventFrame{}, fmt.Errorf("missing event name")
	}
	if f.Version != "" && f.Version != ProtoVersion {
		return EventFrame{}, fmt.Errorf("unexpected proto version: %s", f.Version)
	}
	return f, nil
}
