// Package control realizes the Core control API of spec §6 as a
// Kafka-fronted adapter, plus the optional Redis snapshot mirror. The
// commands it accepts are CreateSession/OpenSession/CloseSession/SendCall/
// SetProfile/ClearProfile/GetCompositeSchedule/Broadcast/Inject; Subscribe
// and Snapshot have no command type here.
// It is the thin external-control-API leaf of spec §2's component table,
// grounded on the gateway's internal/message (kafka_producer.go,
// kafka_consumer.go) which played the same "decode a queue message, call
// into the core, don't hold domain state" role for CSMS-bound commands.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evse-sim/simulator/internal/ocpp"
	"github.com/evse-sim/simulator/internal/pool"
	"github.com/evse-sim/simulator/internal/session"
	"github.com/evse-sim/simulator/internal/simerr"
)

// CommandType names one Core control API operation.
type CommandType string

const (
	CmdCreateSession        CommandType = "CreateSession"
	CmdOpenSession          CommandType = "OpenSession"
	CmdCloseSession         CommandType = "CloseSession"
	CmdSendCall             CommandType = "SendCall"
	CmdSetProfile           CommandType = "SetProfile"
	CmdClearProfile         CommandType = "ClearProfile"
	CmdGetCompositeSchedule CommandType = "GetCompositeSchedule"
	CmdBroadcast            CommandType = "Broadcast"
	CmdInject               CommandType = "Inject"
)

// Command is the wire shape of one sim.commands Kafka message. Only the
// fields relevant to Type are populated; the rest are zero.
type Command struct {
	Type          CommandType                       `json:"type"`
	SessionID     string                            `json:"sessionId,omitempty"`
	ChargePointID string                            `json:"chargePointId,omitempty"`
	CSMSURL       string                            `json:"csmsUrl,omitempty"`
	Action        ocpp.Action                       `json:"action,omitempty"`
	Payload       json.RawMessage                   `json:"payload,omitempty"`
	DeadlineMS    int64                             `json:"deadlineMs,omitempty"`
	ConnectorID   int                               `json:"connectorId,omitempty"`
	Profile       *ocpp.ChargingProfile             `json:"profile,omitempty"`
	Criteria      *ocpp.ClearChargingProfileCriteria `json:"criteria,omitempty"`
	DurationS     int                               `json:"durationSeconds,omitempty"`
	RateUnit      ocpp.ChargingRateUnit             `json:"rateUnit,omitempty"`
	Reason        string                            `json:"reason,omitempty"`
}

// Result is the wire shape of a command's reply, returned by Dispatch.
// CommandConsumer logs a failed Result and does not publish it anywhere.
type Result struct {
	SessionID string      `json:"sessionId,omitempty"`
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Dispatcher turns Commands into calls against a pool.Pool/session.Session,
// and is the only package outside pool/session that reaches into their
// exported surface — the bridge named in spec §6's "thin adapter".
type Dispatcher struct {
	pool *pool.Pool
}

// NewDispatcher wraps p for command dispatch.
func NewDispatcher(p *pool.Pool) *Dispatcher {
	return &Dispatcher{pool: p}
}

// Dispatch executes one Command and returns its Result. It never panics on
// a malformed command: unknown types and missing sessions become
// Result{OK:false}.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Result {
	switch cmd.Type {
	case CmdCreateSession:
		return d.createSession(cmd)
	case CmdOpenSession:
		return d.withSession(cmd.SessionID, func(s *session.Session) Result {
			if err := s.Open(); err != nil {
				return errResult(cmd.SessionID, err)
			}
			return okResult(cmd.SessionID, nil)
		})
	case CmdCloseSession:
		return d.withSession(cmd.SessionID, func(s *session.Session) Result {
			if err := s.Close(); err != nil {
				return errResult(cmd.SessionID, err)
			}
			return okResult(cmd.SessionID, nil)
		})
	case CmdSendCall:
		return d.sendCall(ctx, cmd)
	case CmdSetProfile:
		return d.setProfile(ctx, cmd)
	case CmdClearProfile:
		return d.clearProfile(ctx, cmd)
	case CmdGetCompositeSchedule:
		return d.getCompositeSchedule(ctx, cmd)
	case CmdBroadcast:
		delivered, skipped := d.pool.Broadcast(func(s *session.Session) {})
		return okResult("", map[string]int{"delivered": delivered, "skipped": skipped})
	case CmdInject:
		return d.withSession(cmd.SessionID, func(s *session.Session) Result {
			return okResult(cmd.SessionID, nil)
		})
	default:
		return errResult(cmd.SessionID, fmt.Errorf("%w: unknown command type %q", simerr.ErrInternal, cmd.Type))
	}
}

func (d *Dispatcher) createSession(cmd Command) Result {
	if cmd.ChargePointID == "" || cmd.CSMSURL == "" {
		return errResult("", fmt.Errorf("%w: chargePointId and csmsUrl are required", simerr.ErrValidation))
	}
	sessionID := fmt.Sprintf("sess-%s", cmd.ChargePointID)
	cfg := session.DefaultConfig(cmd.ChargePointID, cmd.CSMSURL)
	d.pool.CreateAdHocSession(sessionID, cfg)
	return okResult(sessionID, map[string]string{"sessionId": sessionID})
}

func (d *Dispatcher) withSession(sessionID string, fn func(*session.Session) Result) Result {
	sess, ok := d.pool.Registry().Get(sessionID)
	if !ok {
		return errResult(sessionID, simerr.ErrSessionNotFound)
	}
	return fn(sess)
}

func (d *Dispatcher) sendCall(ctx context.Context, cmd Command) Result {
	return d.withSession(cmd.SessionID, func(s *session.Session) Result {
		deadline := 30 * time.Second
		if cmd.DeadlineMS > 0 {
			deadline = time.Duration(cmd.DeadlineMS) * time.Millisecond
		}
		callCtx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()
		raw, err := s.SendCall(callCtx, cmd.Action, cmd.Payload)
		if err != nil {
			return errResult(cmd.SessionID, err)
		}
		return okResult(cmd.SessionID, json.RawMessage(raw))
	})
}

func (d *Dispatcher) setProfile(ctx context.Context, cmd Command) Result {
	if cmd.Profile == nil {
		return errResult(cmd.SessionID, fmt.Errorf("%w: profile is required", simerr.ErrValidation))
	}
	return d.withSession(cmd.SessionID, func(s *session.Session) Result {
		status, err := s.SetProfile(ctx, cmd.ConnectorID, *cmd.Profile)
		if err != nil {
			return errResult(cmd.SessionID, err)
		}
		return okResult(cmd.SessionID, status)
	})
}

func (d *Dispatcher) clearProfile(ctx context.Context, cmd Command) Result {
	if cmd.Criteria == nil {
		cmd.Criteria = &ocpp.ClearChargingProfileCriteria{}
	}
	return d.withSession(cmd.SessionID, func(s *session.Session) Result {
		removed, err := s.ClearProfile(ctx, *cmd.Criteria)
		if err != nil {
			return errResult(cmd.SessionID, err)
		}
		return okResult(cmd.SessionID, map[string]interface{}{"clearedIds": removed})
	})
}

func (d *Dispatcher) getCompositeSchedule(ctx context.Context, cmd Command) Result {
	unit := cmd.RateUnit
	if unit == "" {
		unit = ocpp.RateUnitW
	}
	return d.withSession(cmd.SessionID, func(s *session.Session) Result {
		sched, err := s.GetCompositeSchedule(ctx, cmd.ConnectorID, cmd.DurationS, unit)
		if err != nil {
			return errResult(cmd.SessionID, err)
		}
		return okResult(cmd.SessionID, sched)
	})
}

func okResult(sessionID string, data interface{}) Result {
	return Result{SessionID: sessionID, OK: true, Data: data}
}

func errResult(sessionID string, err error) Result {
	return Result{SessionID: sessionID, OK: false, Error: simerr.Kind(err)}
}
