package ocpp

import (
	"encoding/json"
	"fmt"

	"github.com/evse-sim/simulator/internal/simerr"
)

// Frame is a decoded OCPP-J message in any of the three shapes. Exactly one
// of the type-specific fields is meaningful, selected by Type.
type Frame struct {
	Type             MessageType
	MessageID        string
	Action           Action          // CALL only
	Payload          json.RawMessage // CALL payload, or CALLRESULT payload
	ErrorCode        string          // CALLERROR only
	ErrorDescription string          // CALLERROR only
	ErrorDetails     json.RawMessage // CALLERROR only
}

// Decode parses a raw WebSocket text frame into a Frame, enforcing the
// element-count and type rules of the OCPP-J wire format: CALL has exactly
// 4 elements, CALLRESULT exactly 3, CALLERROR 4 or 5. This mirrors the
// length checks the gateway's serializer performed before attempting to
// interpret payloads.
func Decode(raw []byte) (Frame, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return Frame{}, fmt.Errorf("%w: not a JSON array: %v", simerr.ErrFraming, err)
	}
	if len(elems) < 2 {
		return Frame{}, fmt.Errorf("%w: frame has fewer than 2 elements", simerr.ErrFraming)
	}

	var typeID int
	if err := json.Unmarshal(elems[0], &typeID); err != nil {
		return Frame{}, fmt.Errorf("%w: message type id is not a number: %v", simerr.ErrFraming, err)
	}

	var messageID string
	if err := json.Unmarshal(elems[1], &messageID); err != nil {
		return Frame{}, fmt.Errorf("%w: message id is not a string: %v", simerr.ErrFraming, err)
	}
	if messageID == "" {
		return Frame{}, fmt.Errorf("%w: message id is empty", simerr.ErrFraming)
	}

	switch MessageType(typeID) {
	case Call:
		if len(elems) != 4 {
			return Frame{}, fmt.Errorf("%w: CALL must have 4 elements, got %d", simerr.ErrFraming, len(elems))
		}
		var action string
		if err := json.Unmarshal(elems[2], &action); err != nil {
			return Frame{}, fmt.Errorf("%w: action is not a string: %v", simerr.ErrFraming, err)
		}
		return Frame{Type: Call, MessageID: messageID, Action: Action(action), Payload: elems[3]}, nil

	case CallResult:
		if len(elems) != 3 {
			return Frame{}, fmt.Errorf("%w: CALLRESULT must have 3 elements, got %d", simerr.ErrFraming, len(elems))
		}
		return Frame{Type: CallResult, MessageID: messageID, Payload: elems[2]}, nil

	case CallError:
		if len(elems) != 4 && len(elems) != 5 {
			return Frame{}, fmt.Errorf("%w: CALLERROR must have 4 or 5 elements, got %d", simerr.ErrFraming, len(elems))
		}
		var code, desc string
		if err := json.Unmarshal(elems[2], &code); err != nil {
			return Frame{}, fmt.Errorf("%w: error code is not a string: %v", simerr.ErrFraming, err)
		}
		if err := json.Unmarshal(elems[3], &desc); err != nil {
			return Frame{}, fmt.Errorf("%w: error description is not a string: %v", simerr.ErrFraming, err)
		}
		f := Frame{Type: CallError, MessageID: messageID, ErrorCode: code, ErrorDescription: desc}
		if len(elems) == 5 {
			f.ErrorDetails = elems[4]
		}
		return f, nil

	default:
		return Frame{}, fmt.Errorf("%w: message type id %d", simerr.ErrUnknownFrameType, typeID)
	}
}

// EncodeCall serializes a CALL frame, using an empty JSON object when
// payload is nil (spec §4.1: "Payload, when absent in CALL, is treated as
// empty object").
func EncodeCall(messageID string, action Action, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal([]interface{}{Call, messageID, action, payload})
}

// EncodeCallResult serializes a CALLRESULT frame.
func EncodeCallResult(messageID string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal([]interface{}{CallResult, messageID, payload})
}

// EncodeCallError serializes a CALLERROR frame. details may be nil.
func EncodeCallError(messageID, errorCode, description string, details interface{}) ([]byte, error) {
	if details == nil {
		return json.Marshal([]interface{}{CallError, messageID, errorCode, description, struct{}{}})
	}
	return json.Marshal([]interface{}{CallError, messageID, errorCode, description, details})
}

// DecodePayload unmarshals a frame's raw payload into dst.
func DecodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", simerr.ErrValidation, err)
	}
	return nil
}
