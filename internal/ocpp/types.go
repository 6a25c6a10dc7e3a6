// Package ocpp holds the OCPP-J 1.6 wire vocabulary: message type ids,
// action names, enums, and the payload structs for every action the
// simulator sends or handles. Struct layout and validator tags are carried
// over from the gateway's domain model (internal/domain/ocpp16 in the
// teacher repo), which already encodes the OCPP 1.6 JSON schema faithfully;
// what changes here is which actions are outbound vs. inbound for a
// charge-point client instead of a CSMS server.
package ocpp

import "time"

// MessageType is the first element of every OCPP-J frame.
type MessageType int

const (
	Call       MessageType = 2
	CallResult MessageType = 3
	CallError  MessageType = 4
)

// Action names action strings used as the third element of a CALL frame.
type Action string

const (
	ActionAuthorize              Action = "Authorize"
	ActionBootNotification       Action = "BootNotification"
	ActionChangeAvailability     Action = "ChangeAvailability"
	ActionChangeConfiguration    Action = "ChangeConfiguration"
	ActionClearCache             Action = "ClearCache"
	ActionDataTransfer           Action = "DataTransfer"
	ActionGetConfiguration       Action = "GetConfiguration"
	ActionHeartbeat              Action = "Heartbeat"
	ActionMeterValues            Action = "MeterValues"
	ActionRemoteStartTransaction Action = "RemoteStartTransaction"
	ActionRemoteStopTransaction  Action = "RemoteStopTransaction"
	ActionReset                  Action = "Reset"
	ActionStartTransaction       Action = "StartTransaction"
	ActionStatusNotification     Action = "StatusNotification"
	ActionStopTransaction        Action = "StopTransaction"
	ActionUnlockConnector        Action = "UnlockConnector"
	ActionTriggerMessage         Action = "TriggerMessage"

	ActionClearChargingProfile Action = "ClearChargingProfile"
	ActionGetCompositeSchedule Action = "GetCompositeSchedule"
	ActionSetChargingProfile   Action = "SetChargingProfile"
)

// InboundActions lists the actions a CSMS may send to this simulator
// (spec §4.3's handler table); the session's action handler registry is
// keyed by these.
var InboundActions = []Action{
	ActionReset,
	ActionChangeAvailability,
	ActionChangeConfiguration,
	ActionGetConfiguration,
	ActionRemoteStartTransaction,
	ActionRemoteStopTransaction,
	ActionUnlockConnector,
	ActionTriggerMessage,
	ActionSetChargingProfile,
	ActionClearChargingProfile,
	ActionGetCompositeSchedule,
	ActionDataTransfer,
	ActionClearCache,
}

// OutboundActions lists the actions this simulator initiates toward the
// CSMS.
var OutboundActions = []Action{
	ActionBootNotification,
	ActionHeartbeat,
	ActionStatusNotification,
	ActionAuthorize,
	ActionStartTransaction,
	ActionStopTransaction,
	ActionMeterValues,
	ActionDataTransfer,
}

type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
)

type ChargePointErrorCode string

const (
	ErrorCodeNoError    ChargePointErrorCode = "NoError"
	ErrorCodeOtherError ChargePointErrorCode = "OtherError"
)

type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

type AuthorizationStatus string

const (
	AuthorizationAccepted     AuthorizationStatus = "Accepted"
	AuthorizationBlocked      AuthorizationStatus = "Blocked"
	AuthorizationExpired      AuthorizationStatus = "Expired"
	AuthorizationInvalid      AuthorizationStatus = "Invalid"
	AuthorizationConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

type ResetType string

const (
	ResetHard ResetType = "Hard"
	ResetSoft ResetType = "Soft"
)

type ResetStatus string

const (
	ResetStatusAccepted ResetStatus = "Accepted"
	ResetStatusRejected ResetStatus = "Rejected"
)

type AvailabilityType string

const (
	AvailabilityInoperative AvailabilityType = "Inoperative"
	AvailabilityOperative   AvailabilityType = "Operative"
)

type AvailabilityStatus string

const (
	AvailabilityStatusAccepted  AvailabilityStatus = "Accepted"
	AvailabilityStatusRejected  AvailabilityStatus = "Rejected"
	AvailabilityStatusScheduled AvailabilityStatus = "Scheduled"
)

type ConfigurationStatus string

const (
	ConfigurationAccepted       ConfigurationStatus = "Accepted"
	ConfigurationRejected       ConfigurationStatus = "Rejected"
	ConfigurationRebootRequired ConfigurationStatus = "RebootRequired"
	ConfigurationNotSupported   ConfigurationStatus = "NotSupported"
)

type ClearCacheStatus string

const (
	ClearCacheAccepted ClearCacheStatus = "Accepted"
	ClearCacheRejected ClearCacheStatus = "Rejected"
)

type UnlockStatus string

const (
	UnlockUnlocked     UnlockStatus = "Unlocked"
	UnlockFailed       UnlockStatus = "UnlockFailed"
	UnlockNotSupported UnlockStatus = "NotSupported"
)

type Reason string

const (
	ReasonEmergencyStop Reason = "EmergencyStop"
	ReasonEVDisconnected Reason = "EVDisconnected"
	ReasonHardReset     Reason = "HardReset"
	ReasonLocal         Reason = "Local"
	ReasonOther         Reason = "Other"
	ReasonPowerLoss     Reason = "PowerLoss"
	ReasonReboot        Reason = "Reboot"
	ReasonRemote        Reason = "Remote"
	ReasonSoftReset     Reason = "SoftReset"
	ReasonUnlockCommand Reason = "UnlockCommand"
)

type RemoteStartStopStatus string

const (
	RemoteAccepted RemoteStartStopStatus = "Accepted"
	RemoteRejected RemoteStartStopStatus = "Rejected"
)

type ClearChargingProfileStatus string

const (
	ClearProfileAccepted ClearChargingProfileStatus = "Accepted"
	ClearProfileUnknown  ClearChargingProfileStatus = "Unknown"
)

type ChargingProfileStatus string

const (
	ChargingProfileAccepted      ChargingProfileStatus = "Accepted"
	ChargingProfileRejected      ChargingProfileStatus = "Rejected"
	ChargingProfileNotSupported  ChargingProfileStatus = "NotSupported"
)

type GetCompositeScheduleStatus string

const (
	CompositeScheduleAccepted GetCompositeScheduleStatus = "Accepted"
	CompositeScheduleRejected GetCompositeScheduleStatus = "Rejected"
)

type TriggerMessageStatus string

const (
	TriggerAccepted       TriggerMessageStatus = "Accepted"
	TriggerRejected       TriggerMessageStatus = "Rejected"
	TriggerNotImplemented TriggerMessageStatus = "NotImplemented"
)

type MessageTrigger string

const (
	TriggerBootNotification   MessageTrigger = "BootNotification"
	TriggerHeartbeat          MessageTrigger = "Heartbeat"
	TriggerMeterValues        MessageTrigger = "MeterValues"
	TriggerStatusNotification MessageTrigger = "StatusNotification"
)

// DateTime marshals as RFC3339, matching the OCPP-J wire format.
type DateTime struct {
	time.Time
}

func NewDateTime(t time.Time) DateTime { return DateTime{Time: t} }

func (dt DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + dt.Time.UTC().Format(time.RFC3339) + `"`), nil
}

func (dt *DateTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		return nil
	}
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	dt.Time = t
	return nil
}

type IdTagInfo struct {
	ExpiryDate  *DateTime           `json:"expiryDate,omitempty"`
	ParentIdTag *string             `json:"parentIdTag,omitempty" validate:"omitempty,ocpp_id_token"`
	Status      AuthorizationStatus `json:"status" validate:"required"`
}

type KeyValue struct {
	Key      string  `json:"key" validate:"required,max=50"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty" validate:"omitempty,max=500"`
}

type MeterValue struct {
	Timestamp    DateTime       `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1"`
}

type SampledValue struct {
	Value     string          `json:"value" validate:"required"`
	Context   *ReadingContext `json:"context,omitempty"`
	Format    *ValueFormat    `json:"format,omitempty"`
	Measurand *Measurand      `json:"measurand,omitempty"`
	Phase     *Phase          `json:"phase,omitempty"`
	Location  *Location       `json:"location,omitempty"`
	Unit      *UnitOfMeasure  `json:"unit,omitempty"`
}

type ReadingContext string

const (
	ContextSampleClock    ReadingContext = "Sample.Clock"
	ContextSamplePeriodic ReadingContext = "Sample.Periodic"
	ContextTransactionBegin ReadingContext = "Transaction.Begin"
	ContextTransactionEnd ReadingContext = "Transaction.End"
	ContextTrigger        ReadingContext = "Trigger"
)

type ValueFormat string

const (
	FormatRaw ValueFormat = "Raw"
)

type Measurand string

const (
	MeasurandEnergyActiveImportRegister Measurand = "Energy.Active.Import.Register"
	MeasurandPowerActiveImport          Measurand = "Power.Active.Import"
	MeasurandCurrentImport              Measurand = "Current.Import"
	MeasurandSoC                        Measurand = "SoC"
	MeasurandVoltage                    Measurand = "Voltage"
)

type Phase string

const (
	PhaseL1 Phase = "L1"
	PhaseL2 Phase = "L2"
	PhaseL3 Phase = "L3"
)

type Location string

const (
	LocationOutlet Location = "Outlet"
	LocationEV     Location = "EV"
)

type UnitOfMeasure string

const (
	UnitWh      UnitOfMeasure = "Wh"
	UnitW       UnitOfMeasure = "W"
	UnitA       UnitOfMeasure = "A"
	UnitPercent UnitOfMeasure = "Percent"
)

// ChargingProfilePurpose is the scope a profile applies to.
type ChargingProfilePurpose string

const (
	PurposeChargePointMaxProfile ChargingProfilePurpose = "ChargePointMaxProfile"
	PurposeTxDefaultProfile      ChargingProfilePurpose = "TxDefaultProfile"
	PurposeTxProfile             ChargingProfilePurpose = "TxProfile"
)

// ChargingProfileKind is the time-basis a schedule is evaluated against.
type ChargingProfileKind string

const (
	KindAbsolute  ChargingProfileKind = "Absolute"
	KindRecurring ChargingProfileKind = "Recurring"
	KindRelative  ChargingProfileKind = "Relative"
)

type RecurrencyKind string

const (
	RecurrencyDaily  RecurrencyKind = "Daily"
	RecurrencyWeekly RecurrencyKind = "Weekly"
)

type ChargingRateUnit string

const (
	RateUnitW ChargingRateUnit = "W"
	RateUnitA ChargingRateUnit = "A"
)

// ChargingProfile mirrors the OCPP 1.6 SetChargingProfile.csChargingProfiles
// payload exactly: id/stackLevel/purpose/kind/schedule, as modelled already
// in the gateway's ocpp16 message types.
type ChargingProfile struct {
	ChargingProfileId      int                     `json:"chargingProfileId" validate:"required"`
	TransactionId          *int                    `json:"transactionId,omitempty"`
	StackLevel             int                     `json:"stackLevel" validate:"min=0"`
	ChargingProfilePurpose ChargingProfilePurpose  `json:"chargingProfilePurpose" validate:"required"`
	ChargingProfileKind    ChargingProfileKind     `json:"chargingProfileKind" validate:"required"`
	RecurrencyKind         *RecurrencyKind         `json:"recurrencyKind,omitempty"`
	ValidFrom              *DateTime               `json:"validFrom,omitempty"`
	ValidTo                *DateTime               `json:"validTo,omitempty"`
	ChargingSchedule       ChargingSchedule        `json:"chargingSchedule" validate:"required"`
}

type ChargingSchedule struct {
	Duration               *int                     `json:"duration,omitempty" validate:"omitempty,min=0"`
	StartSchedule          *DateTime                `json:"startSchedule,omitempty"`
	ChargingRateUnit       ChargingRateUnit         `json:"chargingRateUnit" validate:"required"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod" validate:"required,min=1"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty"`
}

type ChargingSchedulePeriod struct {
	StartPeriod  int      `json:"startPeriod" validate:"min=0"`
	Limit        float64  `json:"limit" validate:"min=0"`
	NumberPhases *int     `json:"numberPhases,omitempty" validate:"omitempty,min=1,max=3"`
}

// ClearChargingProfileCriteria is the optional filter payload for
// ClearChargingProfile; a nil field means "don't filter on this".
type ClearChargingProfileCriteria struct {
	Id                     *int                    `json:"id,omitempty"`
	ConnectorId            *int                    `json:"connectorId,omitempty"`
	ChargingProfilePurpose *ChargingProfilePurpose `json:"chargingProfilePurpose,omitempty"`
	StackLevel             *int                    `json:"stackLevel,omitempty"`
}
