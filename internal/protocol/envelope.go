// Package protocol defines the JSON messages exchanged between loxr job
// submitters, workers, and playground clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holla2040/loxr/internal/script/result"
)

// Message type constants.
const (
	TypeRunRequest      = "run.request"
	TypeRunResult       = "run.result"
	TypeRunNotice       = "run.notice"
	TypeWorkerHeartbeat = "worker.heartbeat"
)

// ValidMessageTypes lists all valid message types.
var ValidMessageTypes = []string{
	TypeRunRequest,
	TypeRunResult,
	TypeRunNotice,
	TypeWorkerHeartbeat,
}

// SchemaVersion is the current protocol version.
const SchemaVersion = "v1.0.0"

// Message is the top-level protocol message containing an envelope and payload.
type Message struct {
	Envelope Envelope        `json:"envelope"`
	Payload  json.RawMessage `json:"payload"`
}

// Envelope contains message metadata and routing information.
type Envelope struct {
	ID            string `json:"id"`
	Timestamp     int64  `json:"timestamp"`
	Source        Source `json:"source"`
	SchemaVersion string `json:"schema_version"`
	Type          string `json:"type"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ReplyTo       string `json:"reply_to,omitempty"`
}

// Source identifies who sent a message.
type Source struct {
	Service  string `json:"service"`
	Instance string `json:"instance"`
	Version  string `json:"version"`
}

// RunRequestPayload asks a worker to run a program.
type RunRequestPayload struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// RunNoticePayload announces a finished run without its output.
type RunNoticePayload struct {
	RunID      string `json:"run_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
}

// HeartbeatPayload reports a worker's liveness and counters.
type HeartbeatPayload struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	JobsProcessed int     `json:"jobs_processed"`
	JobsFailed    int     `json:"jobs_failed"`
	LastError     *string `json:"last_error"`
}

// NoticeFor summarizes a report as a RunNoticePayload.
func NoticeFor(r *result.RunReport) RunNoticePayload {
	return RunNoticePayload{
		RunID:      r.RunID,
		Name:       r.Name,
		Status:     r.Status,
		ExitCode:   r.ExitCode,
		DurationMs: r.DurationMs,
	}
}

// NewEnvelope creates a new envelope with a generated UUIDv4 and current UTC timestamp.
func NewEnvelope(source Source, msgType string) Envelope {
	return Envelope{
		ID:            uuid.New().String(),
		Timestamp:     time.Now().UTC().Unix(),
		Source:        source,
		SchemaVersion: SchemaVersion,
		Type:          msgType,
	}
}

// NewMessage builds a complete message with envelope and marshaled payload.
func NewMessage(source Source, msgType string, payload interface{}) (*Message, error) {
	env := NewEnvelope(source, msgType)

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return &Message{
		Envelope: env,
		Payload:  json.RawMessage(payloadBytes),
	}, nil
}

// NewRunRequest builds a run.request with a fresh correlation ID. The worker
// publishes its result to replyTo.
func NewRunRequest(source Source, replyTo string, payload RunRequestPayload) (*Message, error) {
	msg, err := NewMessage(source, TypeRunRequest, payload)
	if err != nil {
		return nil, err
	}
	msg.Envelope.CorrelationID = uuid.New().String()
	msg.Envelope.ReplyTo = replyTo
	return msg, nil
}

// NewRunResult builds the run.result answering req.
func NewRunResult(source Source, req *Message, report *result.RunReport) (*Message, error) {
	msg, err := NewMessage(source, TypeRunResult, report)
	if err != nil {
		return nil, err
	}
	msg.Envelope.CorrelationID = req.Envelope.CorrelationID
	return msg, nil
}

// Encode marshals a Message to JSON.
func Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// Parse unmarshals JSON bytes into a Message.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return &msg, nil
}

// ParseRunRequest extracts a RunRequestPayload from a Message.
func ParseRunRequest(msg *Message) (*RunRequestPayload, error) {
	var p RunRequestPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, fmt.Errorf("parse run request payload: %w", err)
	}
	return &p, nil
}

// ParseRunResult extracts the RunReport carried by a run.result Message.
func ParseRunResult(msg *Message) (*result.RunReport, error) {
	var r result.RunReport
	if err := json.Unmarshal(msg.Payload, &r); err != nil {
		return nil, fmt.Errorf("parse run result payload: %w", err)
	}
	return &r, nil
}

// ParseRunNotice extracts a RunNoticePayload from a Message.
func ParseRunNotice(msg *Message) (*RunNoticePayload, error) {
	var p RunNoticePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, fmt.Errorf("parse run notice payload: %w", err)
	}
	return &p, nil
}

// ParseHeartbeat extracts a HeartbeatPayload from a Message.
func ParseHeartbeat(msg *Message) (*HeartbeatPayload, error) {
	var p HeartbeatPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, fmt.Errorf("parse heartbeat payload: %w", err)
	}
	return &p, nil
}
