// Package wire implements the JSON frame codec for the station's backend
// protocol. Every frame is a single JSON object carrying a schema version
// and a type tag; the codec maps frames onto the closed event and command
// sets in internal/types.
//
// Decode errors fall into three classes with different blast radii:
// malformed frames and unknown shapes are message-local (the frame is
// discarded and the connection continues), while a schema version mismatch
// is connection-fatal since every following frame is unreliable.
package wire

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-station/internal/types"
	"github.com/rxtech-lab/argo-station/pkg/errors"
)

// SchemaVersion is the backend protocol version this codec understands.
const SchemaVersion = 1

// Frame type tags.
const (
	frameEntity      = "entity"
	frameRemove      = "remove"
	frameHeartbeat   = "heartbeat"
	frameNotice      = "notice"
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	framePing        = "ping"
)

// frame is the superset of all wire fields. Which fields are meaningful
// depends on Type; unused fields stay at their zero value and are omitted
// when encoding.
type frame struct {
	V       int               `json:"v"`
	Type    string            `json:"type"`
	ID      string            `json:"id,omitempty"`
	Kind    string            `json:"kind,omitempty"`
	Price   string            `json:"price,omitempty"`
	Status  string            `json:"status,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Level   string            `json:"level,omitempty"`
	Message string            `json:"message,omitempty"`
	IDs     []string          `json:"ids,omitempty"`
	Nonce   string            `json:"nonce,omitempty"`
	TS      int64             `json:"ts,omitempty"`
}

// Decode parses one raw inbound frame into a typed event.
//
// Error codes: ErrCodeFrameMalformed for invalid JSON or missing required
// fields, ErrCodeUnknownShape for an unrecognized type tag, and
// ErrCodeSchemaMismatch for an unsupported schema version. Only the last
// is connection-fatal; use IsFatal to distinguish.
func Decode(raw []byte) (types.InboundEvent, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFrameMalformed, "invalid frame JSON", err)
	}

	if f.V == 0 {
		return nil, errors.New(errors.ErrCodeFrameMalformed, "frame missing schema version")
	}

	if f.V != SchemaVersion {
		return nil, errors.Newf(errors.ErrCodeSchemaMismatch,
			"unsupported schema version %d (supported: %d)", f.V, SchemaVersion)
	}

	switch f.Type {
	case frameEntity:
		return decodeEntity(f)
	case frameRemove:
		if f.ID == "" {
			return nil, errors.New(errors.ErrCodeFrameMalformed, "remove frame missing id")
		}

		return types.EntityRemoveEvent{EntityID: f.ID}, nil
	case frameHeartbeat:
		if f.TS == 0 {
			return nil, errors.New(errors.ErrCodeFrameMalformed, "heartbeat frame missing ts")
		}

		return types.HeartbeatEvent{SentAt: time.UnixMilli(f.TS)}, nil
	case frameNotice:
		if f.Message == "" {
			return nil, errors.New(errors.ErrCodeFrameMalformed, "notice frame missing message")
		}

		return types.NoticeEvent{
			Level:   noticeLevel(f.Level),
			Message: f.Message,
			SentAt:  time.UnixMilli(f.TS),
		}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownShape, "unknown frame type %q", f.Type)
	}
}

func decodeEntity(f frame) (types.InboundEvent, error) {
	if f.ID == "" {
		return nil, errors.New(errors.ErrCodeFrameMalformed, "entity frame missing id")
	}

	// Prices travel as decimal strings; parsing through float64 would
	// silently truncate backend precision.
	price := decimal.Zero

	if f.Price != "" {
		parsed, err := decimal.NewFromString(f.Price)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeFrameMalformed, err,
				"entity frame %s has invalid price %q", f.ID, f.Price)
		}

		price = parsed
	}

	status := types.EntityStatus(f.Status)
	if f.Status == "" {
		status = types.EntityStatusUnknown
	}

	kind := types.EntityKind(f.Kind)
	if f.Kind == "" {
		kind = types.EntityKindInstrument
	}

	return types.EntityUpdateEvent{
		Entity: types.EntityState{
			ID:        f.ID,
			Kind:      kind,
			Price:     price,
			Status:    status,
			Fields:    f.Fields,
			UpdatedAt: time.UnixMilli(f.TS),
		},
	}, nil
}

func noticeLevel(raw string) types.NoticeLevel {
	switch types.NoticeLevel(raw) {
	case types.NoticeLevelWarning:
		return types.NoticeLevelWarning
	case types.NoticeLevelError:
		return types.NoticeLevelError
	default:
		return types.NoticeLevelInfo
	}
}

// Encode serializes an outbound command into a wire frame.
func Encode(cmd types.OutboundCommand) ([]byte, error) {
	f := frame{V: SchemaVersion}

	switch c := cmd.(type) {
	case types.SubscribeCommand:
		f.Type = frameSubscribe
		f.IDs = c.EntityIDs
	case types.UnsubscribeCommand:
		f.Type = frameUnsubscribe
		f.IDs = c.EntityIDs
	case types.PingCommand:
		f.Type = framePing
		f.Nonce = c.Nonce
	default:
		return nil, errors.Newf(errors.ErrCodeEncodeFailed, "unsupported command type %T", cmd)
	}

	raw, err := json.Marshal(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEncodeFailed, "failed to marshal frame", err)
	}

	return raw, nil
}

// DecodeCommand parses one raw outbound frame back into a typed command.
// Used by the backend side of loopback tests and by the mock server.
func DecodeCommand(raw []byte) (types.OutboundCommand, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFrameMalformed, "invalid frame JSON", err)
	}

	if f.V != SchemaVersion {
		return nil, errors.Newf(errors.ErrCodeSchemaMismatch,
			"unsupported schema version %d (supported: %d)", f.V, SchemaVersion)
	}

	switch f.Type {
	case frameSubscribe:
		return types.SubscribeCommand{EntityIDs: f.IDs}, nil
	case frameUnsubscribe:
		return types.UnsubscribeCommand{EntityIDs: f.IDs}, nil
	case framePing:
		return types.PingCommand{Nonce: f.Nonce}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownShape, "unknown command type %q", f.Type)
	}
}

// IsFatal reports whether a decode error must tear down the connection.
// Schema drift cannot be safely ignored; everything else is message-local.
func IsFatal(err error) bool {
	return errors.HasCode(err, errors.ErrCodeSchemaMismatch)
}
