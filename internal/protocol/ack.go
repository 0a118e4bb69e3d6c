package protocol

import (
	"encoding/json"

	"lanbeam/internal/apperr"
)

// Ack statuses sent by the server during a transfer. Acks are bare status
// objects without a type tag, matching the transfer handshake: ready after
// FILE_INFO, receiving once the output file is open, complete or error at
// the end.
const (
	StatusReady     = "ready"
	StatusReceiving = "receiving"
	StatusComplete  = "complete"
	StatusError     = "error"
)

// Ack is the server-to-client transfer acknowledgment.
type Ack struct {
	Status   string `json:"status"`
	Filename string `json:"filename,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// EncodeAck serializes an acknowledgment.
func EncodeAck(ack Ack) ([]byte, error) {
	return json.Marshal(ack)
}

// DecodeAck parses an acknowledgment. A missing status is a protocol error.
func DecodeAck(raw []byte) (Ack, error) {
	var ack Ack
	if err := json.Unmarshal(raw, &ack); err != nil {
		return Ack{}, apperr.New(apperr.Protocol, "protocol.DecodeAck", "malformed acknowledgment", err)
	}
	if ack.Status == "" {
		return Ack{}, apperr.New(apperr.Protocol, "protocol.DecodeAck", "acknowledgment has no status", nil)
	}
	return ack, nil
}
