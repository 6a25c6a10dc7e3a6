package session

import (
	"fmt"
	"sort"

	"github.com/evse-sim/simulator/internal/ocpp"
)

// handleReset honours Hard and Soft reset identically at the simulator
// level: both tear the socket down and run the reconnect policy, since
// there is no real hardware reboot to distinguish them (spec §4.3 Reset).
func handleReset(s *Session, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp.ResetRequest)
	go func() {
		s.enqueueInternal(func(s *Session) {
			s.logLine("info", fmt.Sprintf("resetting (%s)", req.Type))
			s.closeSocketLocked()
			s.transactionID = nil
			s.scheduleReconnect()
		})
	}()
	return &ocpp.ResetResponse{Status: ocpp.ResetStatusAccepted}, nil
}

func handleChangeAvailability(s *Session, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp.ChangeAvailabilityRequest)
	if s.state == StateCharging || s.state == StateSuspendedEV || s.state == StateSuspendedEVSE {
		return &ocpp.ChangeAvailabilityResponse{Status: ocpp.AvailabilityStatusScheduled}, nil
	}
	if req.Type == ocpp.AvailabilityInoperative {
		s.availability = "Inoperative"
		s.sendStatusNotification(ocpp.StatusUnavailable)
	} else {
		s.availability = "Operative"
		s.sendStatusNotification(ocpp.StatusAvailable)
	}
	return &ocpp.ChangeAvailabilityResponse{Status: ocpp.AvailabilityStatusAccepted}, nil
}

func handleChangeConfiguration(s *Session, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp.ChangeConfigurationRequest)
	if req.Key == "HeartbeatInterval" || req.Key == "MeterValueSampleInterval" {
		// Interval changes are stored (and reported by GetConfiguration) with
		// RebootRequired; the running tickers keep the intervals the session
		// was started with, and a later BootNotification does not re-read them.
		s.configKV[req.Key] = req.Value
		return &ocpp.ChangeConfigurationResponse{Status: ocpp.ConfigurationRebootRequired}, nil
	}
	s.configKV[req.Key] = req.Value
	return &ocpp.ChangeConfigurationResponse{Status: ocpp.ConfigurationAccepted}, nil
}

func handleGetConfiguration(s *Session, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp.GetConfigurationRequest)
	resp := &ocpp.GetConfigurationResponse{}
	if len(req.Key) == 0 {
		keys := make([]string, 0, len(s.configKV))
		for k := range s.configKV {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := s.configKV[k]
			resp.ConfigurationKey = append(resp.ConfigurationKey, ocpp.KeyValue{Key: k, Value: &v})
		}
		return resp, nil
	}
	for _, k := range req.Key {
		if v, ok := s.configKV[k]; ok {
			val := v
			resp.ConfigurationKey = append(resp.ConfigurationKey, ocpp.KeyValue{Key: k, Value: &val})
		} else {
			resp.UnknownKey = append(resp.UnknownKey, k)
		}
	}
	return resp, nil
}

// handleRemoteStartTransaction queues an outbound StartTransaction (no
// Authorize is sent) for a later task turn, per spec §4.3's remote-start
// flow, so the CALLRESULT answering this CALL is written first.
func handleRemoteStartTransaction(s *Session, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp.RemoteStartTransactionRequest)
	if s.transactionID != nil {
		return &ocpp.RemoteStartTransactionResponse{Status: ocpp.RemoteRejected}, nil
	}
	connectorID := s.connectorID
	if req.ConnectorId != nil {
		connectorID = *req.ConnectorId
	}
	if req.ChargingProfile != nil {
		if _, err := s.profiles.Accept(connectorID, *req.ChargingProfile, s.txState(), s.clk.Now()); err != nil {
			s.logLine("warn", fmt.Sprintf("rejected chargingProfile on RemoteStartTransaction: %v", err))
		}
	}
	idTag := req.IdTag
	startReq := ocpp.StartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       idTag,
		MeterStart:  s.meterValueWh,
		Timestamp:   ocpp.NewDateTime(s.clk.Now()),
	}
	onStart := func(s *Session, raw []byte, err error) {
		if err != nil {
			s.logLine("warn", fmt.Sprintf("StartTransaction failed: %v", err))
			return
		}
		var resp ocpp.StartTransactionResponse
		if decodeErr := ocpp.DecodePayload(raw, &resp); decodeErr != nil {
			s.logLine("warn", fmt.Sprintf("StartTransaction response decode failed: %v", decodeErr))
			return
		}
		if resp.IdTagInfo.Status != ocpp.AuthorizationAccepted {
			s.logLine("info", fmt.Sprintf("StartTransaction authorization %s", resp.IdTagInfo.Status))
			return
		}
		txID := resp.TransactionId
		s.transactionID = &txID
		s.txStartedAt = s.clk.Now()
		s.idTag = idTag
		s.connectorID = connectorID
		s.profiles.AttachTransaction(connectorID, txID)
		s.setState(StateCharging)
		s.sendStatusNotification(ocpp.StatusCharging)
	}
	if err := ocpp.ValidatePayload(startReq); err != nil {
		return &ocpp.RemoteStartTransactionResponse{Status: ocpp.RemoteRejected}, nil
	}
	go s.enqueueInternal(func(s *Session) {
		if err := s.sendCallAsync(ocpp.ActionStartTransaction, startReq, onStart); err != nil {
			s.logLine("warn", fmt.Sprintf("could not send StartTransaction: %v", err))
		}
	})
	return &ocpp.RemoteStartTransactionResponse{Status: ocpp.RemoteAccepted}, nil
}

func handleRemoteStopTransaction(s *Session, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp.RemoteStopTransactionRequest)
	if s.transactionID == nil || *s.transactionID != req.TransactionId {
		return &ocpp.RemoteStopTransactionResponse{Status: ocpp.RemoteRejected}, nil
	}
	txID := *s.transactionID
	connectorID := s.connectorID
	s.setState(StateFinishing)
	reason := ocpp.ReasonRemote
	err := s.sendCallAsync(ocpp.ActionStopTransaction, ocpp.StopTransactionRequest{
		MeterStop:     s.meterValueWh,
		Timestamp:     ocpp.NewDateTime(s.clk.Now()),
		TransactionId: txID,
		Reason:        &reason,
	}, func(s *Session, raw []byte, err error) {
		if err != nil {
			s.logLine("warn", fmt.Sprintf("StopTransaction failed: %v", err))
		}
		s.transactionID = nil
		s.profiles.DetachTransaction(connectorID, txID)
		s.setState(StateAvailable)
		s.sendStatusNotification(ocpp.StatusAvailable)
	})
	if err != nil {
		s.logLine("error", fmt.Sprintf("could not send StopTransaction: %v", err))
	}
	return &ocpp.RemoteStopTransactionResponse{Status: ocpp.RemoteAccepted}, nil
}

func handleUnlockConnector(s *Session, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp.UnlockConnectorRequest)
	if req.ConnectorId != s.connectorID {
		return &ocpp.UnlockConnectorResponse{Status: ocpp.UnlockNotSupported}, nil
	}
	if s.transactionID != nil {
		return &ocpp.UnlockConnectorResponse{Status: ocpp.UnlockFailed}, nil
	}
	return &ocpp.UnlockConnectorResponse{Status: ocpp.UnlockUnlocked}, nil
}

func handleTriggerMessage(s *Session, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp.TriggerMessageRequest)
	switch req.RequestedMessage {
	case ocpp.TriggerBootNotification:
		go s.enqueueInternal(func(s *Session) { s.sendBootNotification() })
	case ocpp.TriggerHeartbeat:
		go s.enqueueInternal(func(s *Session) { s.onHeartbeatTick() })
	case ocpp.TriggerMeterValues:
		go s.enqueueInternal(func(s *Session) { s.onMeterTick() })
	case ocpp.TriggerStatusNotification:
		go s.enqueueInternal(func(s *Session) { s.sendStatusNotification(s.currentOcppStatus()) })
	default:
		return &ocpp.TriggerMessageResponse{Status: ocpp.TriggerNotImplemented}, nil
	}
	return &ocpp.TriggerMessageResponse{Status: ocpp.TriggerAccepted}, nil
}

// currentOcppStatus maps the session state machine onto the wire-level
// ChargePointStatus vocabulary for a spontaneous StatusNotification.
func (s *Session) currentOcppStatus() ocpp.ChargePointStatus {
	switch s.state {
	case StateCharging:
		return ocpp.StatusCharging
	case StateSuspendedEV:
		return ocpp.StatusSuspendedEV
	case StateSuspendedEVSE:
		return ocpp.StatusSuspendedEVSE
	case StateFinishing:
		return ocpp.StatusFinishing
	case StateFaulted:
		return ocpp.StatusFaulted
	default:
		if s.availability == "Inoperative" {
			return ocpp.StatusUnavailable
		}
		return ocpp.StatusAvailable
	}
}

func handleSetChargingProfile(s *Session, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp.SetChargingProfileRequest)
	status, err := s.profiles.Accept(req.ConnectorId, req.CsChargingProfiles, s.txState(), s.clk.Now())
	if err != nil {
		s.logLine("info", fmt.Sprintf("SetChargingProfile rejected: %v", err))
	}
	return &ocpp.SetChargingProfileResponse{Status: status}, nil
}

func handleClearChargingProfile(s *Session, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp.ClearChargingProfileRequest)
	removed := s.profiles.Clear(req.ClearChargingProfileCriteria)
	if len(removed) == 0 {
		return &ocpp.ClearChargingProfileResponse{Status: ocpp.ClearProfileUnknown}, nil
	}
	return &ocpp.ClearChargingProfileResponse{Status: ocpp.ClearProfileAccepted}, nil
}

func handleGetCompositeSchedule(s *Session, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp.GetCompositeScheduleRequest)
	unit := ocpp.RateUnitW
	if req.ChargingRateUnit != nil {
		unit = *req.ChargingRateUnit
	}
	schedule := s.profiles.CompositeSchedule(req.ConnectorId, req.Duration, unit, s.txState(), s.clk.Now(), s.cfg.ConnectorConfig, s.cfg.MaxPowerW)
	start := ocpp.NewDateTime(s.clk.Now())
	connID := req.ConnectorId
	return &ocpp.GetCompositeScheduleResponse{
		Status:           ocpp.CompositeScheduleAccepted,
		ConnectorId:      &connID,
		ScheduleStart:    &start,
		ChargingSchedule: &schedule,
	}, nil
}

func handleDataTransfer(s *Session, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp.DataTransferRequest)
	s.logLine("info", fmt.Sprintf("DataTransfer from CSMS: vendor=%s messageId=%v", req.VendorId, req.MessageId))
	return &ocpp.DataTransferResponse{Status: ocpp.DataTransferAccepted}, nil
}

func handleClearCache(s *Session, payload interface{}) (interface{}, error) {
	return &ocpp.ClearCacheResponse{Status: ocpp.ClearCacheAccepted}, nil
}
