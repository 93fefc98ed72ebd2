package uds

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/modoterra/logcatview/pkg/core"
	"github.com/modoterra/logcatview/pkg/logcat"
	"github.com/modoterra/logcatview/pkg/record"
)

var reqCounter atomic.Uint64

// MsgType identifies the kind of message.
type MsgType string

const (
	MsgTypeReq MsgType = "req"
	MsgTypeRes MsgType = "res"
	MsgTypeEvt MsgType = "evt"
)

// Message is the NDJSON envelope for all communication.
type Message struct {
	Type   MsgType         `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Method, err)
	}
	return nil
}

// NewRequest creates a new request message with a unique ID.
func NewRequest(method string, data any) (Message, error) {
	id := fmt.Sprintf("req-%d", reqCounter.Add(1))
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeReq,
		ID:     id,
		Method: method,
		Data:   raw,
	}, nil
}

// NewResponse creates a response to a request.
func NewResponse(reqID, method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Data:   raw,
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(reqID, method, errMsg string) Message {
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Error:  errMsg,
	}
}

// NewEvent creates a server-pushed event.
func NewEvent(method string, data any) (Message, error) {
	id := fmt.Sprintf("evt-%d", reqCounter.Add(1))
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeEvt,
		ID:     id,
		Method: method,
		Data:   raw,
	}, nil
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	return json.Marshal(data)
}

// Methods
const (
	MethodPing            = "Ping"
	MethodStatus          = "Status"
	MethodRecent          = "Recent"
	MethodLogsSubscribe   = "LogsSubscribe"
	MethodLogsUnsubscribe = "LogsUnsubscribe"
	MethodPause           = "Pause"
	MethodResume          = "Resume"
	MethodClear           = "Clear"
	MethodSetSource       = "SetSource"
	MethodRestart         = "Restart"
	MethodStartRecording  = "StartRecording"
	MethodStopRecording   = "StopRecording"
	MethodListRecords     = "ListRecords"
	MethodDeleteRecords   = "DeleteRecords"
	MethodExportRecords   = "ExportRecords"
	MethodTailRecord      = "TailRecord"

	EventLogsBatch      = "logs.batch"
	EventSessionStatus  = "session.status"
	EventSessionEnded   = "session.ended"
	EventRecordsChanged = "records.changed"
)

// TopicLogs carries logs.batch events to peers that called LogsSubscribe.
const TopicLogs = "logs"

// PingResponse is the response to a Ping request.
type PingResponse struct {
	Pong    bool   `json:"pong"`
	Version string `json:"version,omitempty"`
}

// StatusResponse describes the daemon's session and recording.
type StatusResponse struct {
	Session    logcat.Status  `json:"session"`
	Recording  *record.Status `json:"recording,omitempty"`
	History    int            `json:"history"`
	RecordsDir string         `json:"records_dir"`
}

// RecentRequest asks for the newest history entries. Limit <= 0 means all.
type RecentRequest struct {
	Limit int `json:"limit"`
}

// EntriesResponse carries log entries, oldest first.
type EntriesResponse struct {
	Entries []core.Entry `json:"entries"`
}

// ResumeResponse reports how many paused entries were flushed.
type ResumeResponse struct {
	Flushed int `json:"flushed"`
}

// SetSourceRequest switches the logcat buffer.
type SetSourceRequest struct {
	Buffer string `json:"buffer"`
}

// StartRecordingRequest starts recording entries that pass Filter. An empty
// Name uses a timestamped default.
type StartRecordingRequest struct {
	Name   string      `json:"name,omitempty"`
	Filter core.Filter `json:"filter"`
}

// ListRecordsResponse lists saved recordings, newest first.
type ListRecordsResponse struct {
	Dir     string        `json:"dir"`
	Records []record.Info `json:"records"`
}

// DeleteRecordsRequest names the recordings to remove.
type DeleteRecordsRequest struct {
	Names []string `json:"names"`
}

// DeleteRecordsResponse lists what was removed.
type DeleteRecordsResponse struct {
	Deleted []string `json:"deleted"`
}

// ExportRecordsRequest writes a tar.gz of Names to Dest.
type ExportRecordsRequest struct {
	Names []string `json:"names"`
	Dest  string   `json:"dest"`
}

// ExportRecordsResponse returns the archive path.
type ExportRecordsResponse struct {
	Path string `json:"path"`
}

// TailRecordRequest asks for the last Lines lines of a recording.
type TailRecordRequest struct {
	Name  string `json:"name"`
	Lines int    `json:"lines"`
}

// TailRecordResponse carries the tail of a recording.
type TailRecordResponse struct {
	Lines []string `json:"lines"`
}

// SessionEndedEvent is pushed when logcat exits on its own.
type SessionEndedEvent struct {
	Error string `json:"error,omitempty"`
}
