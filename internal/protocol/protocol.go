package protocol

import (
	"encoding/json"
	"fmt"

	"lanbeam/internal/apperr"
)

// Message type tags as they appear on the wire.
const (
	TypeDiscovery         = "DISCOVERY"
	TypeDiscoveryResponse = "DISCOVERY_RESPONSE"
	TypeFileInfo          = "FILE_INFO"
	TypeFileChunk         = "FILE_CHUNK"
	TypeProgress          = "TRANSFER_PROGRESS"
	TypeDisconnect        = "DISCONNECT"
	TypeError             = "ERROR"

	// TypeUnknown is assigned by Decode to messages whose type tag is
	// well-formed but not one of the kinds above. Such messages decode
	// without error so the receive loop can log and skip them.
	TypeUnknown = "UNKNOWN"
)

const (
	// ServiceName identifies the transfer service in discovery messages.
	// Responses carrying any other service name are ignored.
	ServiceName = "FILE_TRANSFER"

	// ProtocolVersion travels in discovery messages.
	ProtocolVersion = "1.0"

	// DefaultTransferPort is assumed when a discovery response omits the
	// port field.
	DefaultTransferPort = 42424
)

// FileInfo announces a file about to be streamed. The body that follows the
// acknowledgment is exactly Filesize raw bytes, unframed.
type FileInfo struct {
	Filename string `json:"filename"`
	Filesize uint64 `json:"filesize"`
	Checksum string `json:"checksum"`
}

// Chunk is the payload of a FILE_CHUNK message. The current transfer path
// streams the file body as raw bytes and never sends this kind; it is kept
// for wire compatibility with framed-chunk senders. Unlike every other kind
// its fields sit at the top level of the JSON object, not under "data".
type Chunk struct {
	Data  string `json:"chunk_data"`
	Size  uint64 `json:"chunk_size"`
	Index uint64 `json:"chunk_index"`
}

// Progress reports transfer progress for a file in flight.
type Progress struct {
	Filename      string `json:"filename"`
	BytesReceived uint64 `json:"bytes_received"`
	Percentage    int    `json:"percentage"`
}

// Discovery is broadcast over UDP to find transfer servers on the subnet.
type Discovery struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// DiscoveryResponse answers a Discovery probe.
type DiscoveryResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Port    int    `json:"port"`
	Name    string `json:"name"`
}

// Disconnect announces an orderly teardown. The reason is informational.
type Disconnect struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorInfo carries a peer-reported error.
type ErrorInfo struct {
	Reason string `json:"reason"`
}

// Message is the tagged union over all wire message kinds. Exactly the
// variant matching Type is non-nil after Decode.
type Message struct {
	Type              string
	FileInfo          *FileInfo
	Chunk             *Chunk
	Progress          *Progress
	Discovery         *Discovery
	DiscoveryResponse *DiscoveryResponse
	Disconnect        *Disconnect
	Error             *ErrorInfo
}

// envelope is the on-wire shape for every kind except FILE_CHUNK.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// chunkEnvelope is the flattened on-wire shape of FILE_CHUNK messages.
type chunkEnvelope struct {
	Type  string `json:"type"`
	Data  string `json:"chunk_data"`
	Size  uint64 `json:"chunk_size"`
	Index uint64 `json:"chunk_index"`
}

// Encode serializes a message to its wire form.
func Encode(msg Message) ([]byte, error) {
	if msg.Type == TypeFileChunk {
		if msg.Chunk == nil {
			return nil, apperr.New(apperr.Protocol, "protocol.Encode", "chunk message without chunk payload", nil)
		}
		return json.Marshal(chunkEnvelope{
			Type:  TypeFileChunk,
			Data:  msg.Chunk.Data,
			Size:  msg.Chunk.Size,
			Index: msg.Chunk.Index,
		})
	}

	var payload any
	switch msg.Type {
	case TypeFileInfo:
		if msg.FileInfo != nil {
			payload = msg.FileInfo
		}
	case TypeProgress:
		if msg.Progress != nil {
			payload = msg.Progress
		}
	case TypeDiscovery:
		if msg.Discovery != nil {
			payload = msg.Discovery
		}
	case TypeDiscoveryResponse:
		if msg.DiscoveryResponse != nil {
			payload = msg.DiscoveryResponse
		}
	case TypeDisconnect:
		if msg.Disconnect != nil {
			payload = msg.Disconnect
		}
	case TypeError:
		if msg.Error != nil {
			payload = msg.Error
		}
	default:
		return nil, apperr.New(apperr.Protocol, "protocol.Encode", fmt.Sprintf("cannot encode message type %q", msg.Type), nil)
	}

	env := envelope{Type: msg.Type}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, apperr.New(apperr.Protocol, "protocol.Encode", "marshal payload", err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses one wire message. Malformed JSON, a missing type tag, or a
// payload missing required fields all fail with a protocol error. A
// well-formed message with an unrecognized type decodes into TypeUnknown so
// the caller can skip it without treating it as a failure.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, apperr.New(apperr.Protocol, "protocol.Decode", "malformed message", err)
	}
	if env.Type == "" {
		return Message{}, apperr.New(apperr.Protocol, "protocol.Decode", "message has no type tag", nil)
	}

	msg := Message{Type: env.Type}
	switch env.Type {
	case TypeFileInfo:
		info, err := decodeFileInfo(env.Data)
		if err != nil {
			return Message{}, err
		}
		msg.FileInfo = info

	case TypeFileChunk:
		// Chunk fields are flattened at the top level.
		var chunk chunkEnvelope
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return Message{}, apperr.New(apperr.Protocol, "protocol.Decode", "malformed chunk message", err)
		}
		msg.Chunk = &Chunk{Data: chunk.Data, Size: chunk.Size, Index: chunk.Index}

	case TypeProgress:
		var p Progress
		if err := unmarshalData(env.Data, &p); err != nil {
			return Message{}, err
		}
		msg.Progress = &p

	case TypeDiscovery:
		d, err := decodeDiscovery(env.Data)
		if err != nil {
			return Message{}, err
		}
		msg.Discovery = d

	case TypeDiscoveryResponse:
		r, err := decodeDiscoveryResponse(env.Data)
		if err != nil {
			return Message{}, err
		}
		msg.DiscoveryResponse = r

	case TypeDisconnect:
		var d Disconnect
		if len(env.Data) > 0 {
			if err := unmarshalData(env.Data, &d); err != nil {
				return Message{}, err
			}
		}
		msg.Disconnect = &d

	case TypeError:
		var e ErrorInfo
		if err := unmarshalData(env.Data, &e); err != nil {
			return Message{}, err
		}
		msg.Error = &e

	default:
		msg.Type = TypeUnknown
	}

	return msg, nil
}

func unmarshalData(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return apperr.New(apperr.Protocol, "protocol.Decode", "message has no data payload", nil)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.New(apperr.Protocol, "protocol.Decode", "malformed data payload", err)
	}
	return nil
}

func decodeFileInfo(data json.RawMessage) (*FileInfo, error) {
	var wire struct {
		Filename *string `json:"filename"`
		Filesize *uint64 `json:"filesize"`
		Checksum string  `json:"checksum"`
	}
	if err := unmarshalData(data, &wire); err != nil {
		return nil, err
	}
	if wire.Filename == nil || *wire.Filename == "" {
		return nil, apperr.New(apperr.Protocol, "protocol.Decode", "file info missing filename", nil)
	}
	if wire.Filesize == nil {
		return nil, apperr.New(apperr.Protocol, "protocol.Decode", "file info missing filesize", nil)
	}
	return &FileInfo{Filename: *wire.Filename, Filesize: *wire.Filesize, Checksum: wire.Checksum}, nil
}

func decodeDiscovery(data json.RawMessage) (*Discovery, error) {
	var d Discovery
	if err := unmarshalData(data, &d); err != nil {
		return nil, err
	}
	if d.Service == "" {
		return nil, apperr.New(apperr.Protocol, "protocol.Decode", "discovery missing service name", nil)
	}
	return &d, nil
}

func decodeDiscoveryResponse(data json.RawMessage) (*DiscoveryResponse, error) {
	var r DiscoveryResponse
	if err := unmarshalData(data, &r); err != nil {
		return nil, err
	}
	if r.Service == "" {
		return nil, apperr.New(apperr.Protocol, "protocol.Decode", "discovery response missing service name", nil)
	}
	if r.Port == 0 {
		r.Port = DefaultTransferPort
	}
	if r.Name == "" {
		r.Name = "Unknown Device"
	}
	return &r, nil
}
