package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/nowserving/internal/engine"
)

const (
	MsgStateSnapshot = "queue:state"
	MsgNext          = "queue:next"
	MsgReset         = "queue:reset"
	MsgSetStart      = "queue:setStart"
)

type ClientMessage struct {
	Type        string      `json:"type"`
	GroupID     string      `json:"groupId,omitempty"`
	CounterID   string      `json:"counterId,omitempty"`
	StartNumber StartNumber `json:"startNumber,omitempty"`
}

type ServerMessage struct {
	Type    string           `json:"type"` // "queue:state"
	Version int              `json:"version"`
	State   *engine.Snapshot `json:"state,omitempty"`
}

// StartNumber accepts either a JSON number or a JSON string and keeps the
// literal text; validation belongs to the engine.
type StartNumber string

func (s *StartNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = StartNumber(v)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("startNumber: %w", err)
		}
		*s = StartNumber(n)
	}
	return nil
}
