package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/holla2040/loxr/internal/script/result"
)

func testSource() Source {
	return Source{
		Service:  "loxr_submit",
		Instance: "cli-01",
		Version:  "1.0.0",
	}
}

func TestNewEnvelope(t *testing.T) {
	src := testSource()
	env := NewEnvelope(src, TypeWorkerHeartbeat)

	if !uuidV4Pattern.MatchString(env.ID) {
		t.Errorf("NewEnvelope ID is not valid UUIDv4: %q", env.ID)
	}
	if env.Timestamp <= 0 {
		t.Errorf("NewEnvelope Timestamp should be positive, got %d", env.Timestamp)
	}
	if env.SchemaVersion != SchemaVersion {
		t.Errorf("NewEnvelope SchemaVersion = %q, want %q", env.SchemaVersion, SchemaVersion)
	}
	if env.Type != TypeWorkerHeartbeat {
		t.Errorf("NewEnvelope Type = %q, want %q", env.Type, TypeWorkerHeartbeat)
	}
	if env.Source.Service != src.Service {
		t.Errorf("NewEnvelope Source.Service = %q, want %q", env.Source.Service, src.Service)
	}
}

func TestNewMessageRoundTrip(t *testing.T) {
	lastErr := "boom"
	tests := []struct {
		name    string
		msgType string
		payload interface{}
	}{
		{
			name:    "heartbeat",
			msgType: TypeWorkerHeartbeat,
			payload: HeartbeatPayload{Status: "running", UptimeSeconds: 12, JobsProcessed: 3, LastError: &lastErr},
		},
		{
			name:    "run request",
			msgType: TypeRunRequest,
			payload: RunRequestPayload{Name: "a.lox", Source: "print 1;", TimeoutMs: 500},
		},
		{
			name:    "run notice",
			msgType: TypeRunNotice,
			payload: RunNoticePayload{RunID: "r", Name: "a.lox", Status: "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(testSource(), tt.msgType, tt.payload)
			if err != nil {
				t.Fatalf("NewMessage() error: %v", err)
			}

			data, err := Encode(msg)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			parsed, err := Parse(data)
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			if parsed.Envelope != msg.Envelope {
				t.Errorf("envelope changed: got %+v, want %+v", parsed.Envelope, msg.Envelope)
			}

			want, _ := json.Marshal(tt.payload)
			if string(parsed.Payload) != string(want) {
				t.Errorf("payload = %s, want %s", parsed.Payload, want)
			}
		})
	}
}

func TestNewMessageUnmarshalablePayload(t *testing.T) {
	if _, err := NewMessage(testSource(), TypeRunNotice, make(chan int)); err == nil {
		t.Error("expected error for unmarshalable payload")
	}
}

func TestRunRequestAndResult(t *testing.T) {
	req, err := NewRunRequest(testSource(), "loxr:result:abc", RunRequestPayload{Name: "job.lox", Source: "print 2;"})
	if err != nil {
		t.Fatalf("NewRunRequest: %v", err)
	}
	if !uuidV4Pattern.MatchString(req.Envelope.CorrelationID) {
		t.Errorf("CorrelationID is not UUIDv4: %q", req.Envelope.CorrelationID)
	}
	if req.Envelope.CorrelationID == req.Envelope.ID {
		t.Error("correlation ID should be distinct from message ID")
	}
	if req.Envelope.ReplyTo != "loxr:result:abc" {
		t.Errorf("ReplyTo = %q", req.Envelope.ReplyTo)
	}

	p, err := ParseRunRequest(req)
	if err != nil {
		t.Fatalf("ParseRunRequest: %v", err)
	}
	if p.Name != "job.lox" || p.Source != "print 2;" {
		t.Errorf("payload = %+v", p)
	}

	report := &result.RunReport{RunID: "run-9", Name: "job.lox", Status: result.StatusOK, Output: "2\n", StartTime: time.Unix(100, 0).UTC()}
	worker := Source{Service: "loxr_worker", Instance: "w-01", Version: "1.0.0"}
	res, err := NewRunResult(worker, req, report)
	if err != nil {
		t.Fatalf("NewRunResult: %v", err)
	}
	if res.Envelope.CorrelationID != req.Envelope.CorrelationID {
		t.Errorf("result correlation %q, want %q", res.Envelope.CorrelationID, req.Envelope.CorrelationID)
	}
	got, err := ParseRunResult(res)
	if err != nil {
		t.Fatalf("ParseRunResult: %v", err)
	}
	if got.RunID != "run-9" || got.Output != "2\n" || !got.StartTime.Equal(report.StartTime) {
		t.Errorf("report = %+v", got)
	}
}

func TestNoticeFor(t *testing.T) {
	n := NoticeFor(&result.RunReport{RunID: "r1", Name: "n.lox", Status: result.StatusRuntimeError, ExitCode: 70, DurationMs: 9, Output: "x\n"})
	want := RunNoticePayload{RunID: "r1", Name: "n.lox", Status: "runtime_error", ExitCode: 70, DurationMs: 9}
	if n != want {
		t.Errorf("NoticeFor = %+v, want %+v", n, want)
	}
}

func TestParseInvalidJSON(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not_json", "this is not json"},
		{"incomplete", `{"envelope":`},
		{"wrong_type", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Error("Parse() expected error, got nil")
			}
		})
	}
}

func TestTypedPayloadParsersRejectMismatch(t *testing.T) {
	msg := &Message{Payload: json.RawMessage(`"just a string"`)}
	if _, err := ParseRunRequest(msg); err == nil {
		t.Error("ParseRunRequest: expected error")
	}
	if _, err := ParseRunResult(msg); err == nil {
		t.Error("ParseRunResult: expected error")
	}
	if _, err := ParseRunNotice(msg); err == nil {
		t.Error("ParseRunNotice: expected error")
	}
	if _, err := ParseHeartbeat(msg); err == nil {
		t.Error("ParseHeartbeat: expected error")
	}
}
