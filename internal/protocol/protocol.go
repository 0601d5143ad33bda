package protocol

import "encoding/json"

const Version = "1.0"

// Message types carried on the place stream.
const (
	TypeUpdate = "update"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
