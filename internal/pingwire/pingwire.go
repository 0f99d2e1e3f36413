// Package pingwire defines the message envelopes exchanged over the
// persistent channel with the Lost & Found backend, and their codec.
//
// Client to server: subscribe and ping. Server to client: ping_saved, ack,
// and anomaly_alert. Malformed JSON on either side is ignored by callers;
// Decode reports it as an error and nothing else happens.
package pingwire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
)

// Message types carried in the envelope's "type" field.
const (
	TypeSubscribe    = "subscribe"
	TypePing         = "ping"
	TypePingSaved    = "ping_saved"
	TypeAck          = "ack"
	TypeAnomalyAlert = "anomaly_alert"
)

// Envelope is the outer frame of every channel message. Payload stays raw
// until the type is known.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload asks the backend to stream a device's saved samples and
// alerts over this connection.
type SubscribePayload struct {
	DeviceID string `json:"deviceId"`
}

// PingPayload delivers one position sample. The ingest key travels inline
// here; the HTTP fallback carries it as a header instead.
type PingPayload struct {
	DeviceID  string   `json:"deviceId"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Ts        int64    `json:"ts"` // unix milliseconds
	IngestKey string   `json:"ingestKey,omitempty"`
}

// PingSavedPayload echoes a persisted sample, possibly already scored.
type PingSavedPayload struct {
	Ping         sample.Sample `json:"ping"`
	DeviceStatus string        `json:"deviceStatus,omitempty"`
	ZoneName     string        `json:"zoneName,omitempty"`
}

// AckPayload acknowledges a ping request by ID.
type AckPayload struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// AnomalyAlertPayload is a server-initiated anomaly notification. It is not
// necessarily tied to this device's own last send.
type AnomalyAlertPayload struct {
	SampleID  string    `json:"id"`
	DeviceID  string    `json:"deviceId,omitempty"`
	Score     float64   `json:"score"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
	ZoneName  string    `json:"zoneName,omitempty"`
}

// EncodeSubscribe builds the subscribe frame for a device.
func EncodeSubscribe(deviceID string) ([]byte, error) {
	payload, err := json.Marshal(SubscribePayload{DeviceID: deviceID})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: TypeSubscribe, Payload: payload})
}

// EncodePing builds a ping frame with a fresh request ID and returns both
// the frame and the ID so the caller can correlate a later ack.
func EncodePing(p PingPayload) (frame []byte, requestID string, err error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, "", err
	}
	requestID = uuid.NewString()
	frame, err = json.Marshal(Envelope{
		Type:      TypePing,
		RequestID: requestID,
		Payload:   payload,
	})
	return frame, requestID, err
}

// Decode parses a raw channel frame into its envelope. Unknown types are not
// an error here; callers dispatch on Type and drop what they do not handle.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed channel frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("channel frame missing type")
	}
	return &env, nil
}

// DecodePingSaved parses a ping_saved payload.
func DecodePingSaved(env *Envelope) (*PingSavedPayload, error) {
	var p PingSavedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, fmt.Errorf("malformed ping_saved payload: %w", err)
	}
	return &p, nil
}

// DecodeAck parses an ack payload.
func DecodeAck(env *Envelope) (*AckPayload, error) {
	var p AckPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, fmt.Errorf("malformed ack payload: %w", err)
	}
	return &p, nil
}

// DecodeAnomalyAlert parses an anomaly_alert payload.
func DecodeAnomalyAlert(env *Envelope) (*AnomalyAlertPayload, error) {
	var p AnomalyAlertPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, fmt.Errorf("malformed anomaly_alert payload: %w", err)
	}
	return &p, nil
}
