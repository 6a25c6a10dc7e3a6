package session

import (
	"encoding/json"

	"github.com/evse-sim/simulator/internal/ocpp"
)

// Handler is the table-driven dispatch record of spec §4.3: a validate
// step and a handle step keyed by action name, replacing the gateway's
// ProtocolHandler interface/class-hierarchy dispatch (internal/gateway
// dispatcher.go + internal/protocol/ocpp16 processor.go's handleAction
// switch) with an explicit, inspectable table. Handlers never touch the
// socket directly; they mutate session state and the profile store and
// return a result payload or an error for the session task to frame.
type Handler struct {
	// Validate decodes and checks payload, returning a typed value the
	// Handle func receives, or a ValidationError.
	Validate func(raw json.RawMessage) (interface{}, error)
	// Handle executes the action against the session, returning the
	// CALLRESULT payload.
	Handle func(s *Session, payload interface{}) (interface{}, error)
}

// HandlerRegistry is the read-only-after-startup table of spec §4.3 /
// §5 ("Action handler registry: read-only after startup; no locking").
type HandlerRegistry map[ocpp.Action]Handler

// DefaultHandlers returns the registry covering every inbound action spec
// §4.3 names.
func DefaultHandlers() HandlerRegistry {
	return HandlerRegistry{
		ocpp.ActionReset:                  {Validate: decodeValidate(new(ocpp.ResetRequest)), Handle: handleReset},
		ocpp.ActionChangeAvailability:     {Validate: decodeValidate(new(ocpp.ChangeAvailabilityRequest)), Handle: handleChangeAvailability},
		ocpp.ActionChangeConfiguration:    {Validate: decodeValidate(new(ocpp.ChangeConfigurationRequest)), Handle: handleChangeConfiguration},
		ocpp.ActionGetConfiguration:       {Validate: decodeValidateNoRequire(new(ocpp.GetConfigurationRequest)), Handle: handleGetConfiguration},
		ocpp.ActionRemoteStartTransaction: {Validate: decodeValidate(new(ocpp.RemoteStartTransactionRequest)), Handle: handleRemoteStartTransaction},
		ocpp.ActionRemoteStopTransaction:  {Validate: decodeValidate(new(ocpp.RemoteStopTransactionRequest)), Handle: handleRemoteStopTransaction},
		ocpp.ActionUnlockConnector:        {Validate: decodeValidate(new(ocpp.UnlockConnectorRequest)), Handle: handleUnlockConnector},
		ocpp.ActionTriggerMessage:         {Validate: decodeValidate(new(ocpp.TriggerMessageRequest)), Handle: handleTriggerMessage},
		ocpp.ActionSetChargingProfile:     {Validate: decodeValidate(new(ocpp.SetChargingProfileRequest)), Handle: handleSetChargingProfile},
		ocpp.ActionClearChargingProfile:   {Validate: decodeValidateNoRequire(new(ocpp.ClearChargingProfileRequest)), Handle: handleClearChargingProfile},
		ocpp.ActionGetCompositeSchedule:   {Validate: decodeValidate(new(ocpp.GetCompositeScheduleRequest)), Handle: handleGetCompositeSchedule},
		ocpp.ActionDataTransfer:           {Validate: decodeValidate(new(ocpp.DataTransferRequest)), Handle: handleDataTransfer},
		ocpp.ActionClearCache:             {Validate: decodeValidateNoRequire(new(ocpp.ClearCacheRequest)), Handle: handleClearCache},
	}
}

// decodeValidate returns a Validate func that unmarshals raw into a fresh
// value of zero's type (allocated by newLike via reflection) and runs
// struct-tag validation.
func decodeValidate(zero interface{}) func(json.RawMessage) (interface{}, error) {
	return func(raw json.RawMessage) (interface{}, error) {
		v := newLike(zero)
		if err := ocpp.DecodePayload(raw, v); err != nil {
			return nil, err
		}
		if err := ocpp.ValidatePayload(v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// decodeValidateNoRequire skips struct-tag validation for payloads that are
// legitimately empty or all-optional (GetConfiguration, ClearCache,
// ClearChargingProfile).
func decodeValidateNoRequire(zero interface{}) func(json.RawMessage) (interface{}, error) {
	return func(raw json.RawMessage) (interface{}, error) {
		v := newLike(zero)
		if err := ocpp.DecodePayload(raw, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
