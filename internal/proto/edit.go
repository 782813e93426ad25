package proto

import (
	"encoding/json"
	"fmt"
	"time"
)

// Edit is the record appended to the local edit log for every payload the
// relay accepts as fresh.
type Edit struct {
	RefID      string          `json:"ref_id,omitempty"`
	Route      string          `json:"route"`
	Origin     string          `json:"origin,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

func EncodeEdit(e Edit) ([]byte, error) {
	if e.Route == "" {
		return nil, fmt.Errorf("missing route")
	}
	return json.Marshal(e)
}

func DecodeEdit(data []byte) (Edit, error) {
	var e Edit
	if err := json.Unmarshal(data, &e); err != nil {
		return Edit{}, err
	}
	if e.Route == "" {
		return Edit{}, fmt.Errorf("missing route")
	}
	return e, nil
}
