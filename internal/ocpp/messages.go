package ocpp

// Outbound (CP -> CSMS) request/response pairs.

type BootNotificationRequest struct {
	ChargePointVendor       string  `json:"chargePointVendor" validate:"required,max=20"`
	ChargePointModel        string  `json:"chargePointModel" validate:"required,max=20"`
	ChargePointSerialNumber *string `json:"chargePointSerialNumber,omitempty" validate:"omitempty,max=25"`
	FirmwareVersion         *string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
}

type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status" validate:"required"`
	CurrentTime DateTime           `json:"currentTime" validate:"required"`
	Interval    int                `json:"interval" validate:"min=0"`
}

type HeartbeatRequest struct{}

type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime" validate:"required"`
}

type StatusNotificationRequest struct {
	ConnectorId int                  `json:"connectorId" validate:"ocpp_connector_id"`
	ErrorCode   ChargePointErrorCode `json:"errorCode" validate:"required"`
	Status      ChargePointStatus    `json:"status" validate:"required"`
	Timestamp   *DateTime            `json:"timestamp,omitempty"`
}

type StatusNotificationResponse struct{}

type AuthorizeRequest struct {
	IdTag string `json:"idTag" validate:"required,ocpp_id_token"`
}

type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo" validate:"required"`
}

type StartTransactionRequest struct {
	ConnectorId int      `json:"connectorId" validate:"min=1"`
	IdTag       string   `json:"idTag" validate:"required,ocpp_id_token"`
	MeterStart  int      `json:"meterStart" validate:"min=0"`
	Timestamp   DateTime `json:"timestamp" validate:"required"`
}

type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo" validate:"required"`
	TransactionId int       `json:"transactionId"`
}

type StopTransactionRequest struct {
	IdTag           *string      `json:"idTag,omitempty" validate:"omitempty,ocpp_id_token"`
	MeterStop       int          `json:"meterStop" validate:"min=0"`
	Timestamp       DateTime     `json:"timestamp" validate:"required"`
	TransactionId   int          `json:"transactionId"`
	Reason          *Reason      `json:"reason,omitempty"`
	TransactionData []MeterValue `json:"transactionData,omitempty"`
}

type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

type MeterValuesRequest struct {
	ConnectorId   int          `json:"connectorId" validate:"ocpp_connector_id"`
	TransactionId *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue" validate:"required,min=1"`
}

type MeterValuesResponse struct{}

type DataTransferRequest struct {
	VendorId  string      `json:"vendorId" validate:"required,max=255"`
	MessageId *string     `json:"messageId,omitempty" validate:"omitempty,max=50"`
	Data      interface{} `json:"data,omitempty"`
}

type DataTransferStatus string

const (
	DataTransferAccepted DataTransferStatus = "Accepted"
	DataTransferRejected DataTransferStatus = "Rejected"
)

type DataTransferResponse struct {
	Status DataTransferStatus `json:"status" validate:"required"`
	Data   interface{}        `json:"data,omitempty"`
}

// Inbound (CSMS -> CP) request/response pairs.

type ResetRequest struct {
	Type ResetType `json:"type" validate:"required"`
}

type ResetResponse struct {
	Status ResetStatus `json:"status" validate:"required"`
}

type ChangeAvailabilityRequest struct {
	ConnectorId int              `json:"connectorId" validate:"ocpp_connector_id"`
	Type        AvailabilityType `json:"type" validate:"required"`
}

type ChangeAvailabilityResponse struct {
	Status AvailabilityStatus `json:"status" validate:"required"`
}

type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}

type GetConfigurationResponse struct {
	ConfigurationKey []KeyValue `json:"configurationKey,omitempty"`
	UnknownKey       []string   `json:"unknownKey,omitempty"`
}

type ChangeConfigurationRequest struct {
	Key   string `json:"key" validate:"required,max=50"`
	Value string `json:"value" validate:"required,max=500"`
}

type ChangeConfigurationResponse struct {
	Status ConfigurationStatus `json:"status" validate:"required"`
}

type ClearCacheRequest struct{}

type ClearCacheResponse struct {
	Status ClearCacheStatus `json:"status" validate:"required"`
}

type UnlockConnectorRequest struct {
	ConnectorId int `json:"connectorId" validate:"min=1"`
}

type UnlockConnectorResponse struct {
	Status UnlockStatus `json:"status" validate:"required"`
}

type RemoteStartTransactionRequest struct {
	ConnectorId     *int             `json:"connectorId,omitempty" validate:"omitempty,min=1"`
	IdTag           string           `json:"idTag" validate:"required,ocpp_id_token"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
}

type RemoteStartTransactionResponse struct {
	Status RemoteStartStopStatus `json:"status" validate:"required"`
}

type RemoteStopTransactionRequest struct {
	TransactionId int `json:"transactionId"`
}

type RemoteStopTransactionResponse struct {
	Status RemoteStartStopStatus `json:"status" validate:"required"`
}

type TriggerMessageRequest struct {
	RequestedMessage MessageTrigger `json:"requestedMessage" validate:"required"`
	ConnectorId      *int           `json:"connectorId,omitempty" validate:"omitempty,min=1"`
}

type TriggerMessageResponse struct {
	Status TriggerMessageStatus `json:"status" validate:"required"`
}

type SetChargingProfileRequest struct {
	ConnectorId     int             `json:"connectorId" validate:"ocpp_connector_id"`
	CsChargingProfiles ChargingProfile `json:"csChargingProfiles" validate:"required"`
}

type SetChargingProfileResponse struct {
	Status ChargingProfileStatus `json:"status" validate:"required"`
}

type ClearChargingProfileRequest struct {
	ClearChargingProfileCriteria
}

type ClearChargingProfileResponse struct {
	Status ClearChargingProfileStatus `json:"status" validate:"required"`
}

type GetCompositeScheduleRequest struct {
	ConnectorId      int               `json:"connectorId" validate:"ocpp_connector_id"`
	Duration         int               `json:"duration" validate:"min=0"`
	ChargingRateUnit *ChargingRateUnit `json:"chargingRateUnit,omitempty"`
}

type GetCompositeScheduleResponse struct {
	Status           GetCompositeScheduleStatus `json:"status" validate:"required"`
	ConnectorId      *int                       `json:"connectorId,omitempty"`
	ScheduleStart    *DateTime                  `json:"scheduleStart,omitempty"`
	ChargingSchedule *ChargingSchedule          `json:"chargingSchedule,omitempty"`
}
