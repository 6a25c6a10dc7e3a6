package ocpp

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/evse-sim/simulator/internal/simerr"
)

var (
	validatorOnce sync.Once
	v             *validator.Validate

	idTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

func instance() *validator.Validate {
	validatorOnce.Do(func() {
		v = validator.New()
		registerCustomValidations(v)
	})
	return v
}

// registerCustomValidations adapts the gateway's OCPP-specific tag
// functions (internal/domain/validation/validator.go) onto this module's
// message types. ocpp_datetime is not registered here: the gateway applied
// it to raw RFC3339 strings, but this package's DateTime type already
// enforces RFC3339 at json.Unmarshal time (types.go), so a second
// string-format check on the same field would be redundant and, since the
// Go field is a struct rather than a string, would need its own
// reflect-based accessor rather than the gateway's fl.Field().String().
func registerCustomValidations(validate *validator.Validate) {
	validate.RegisterValidation("ocpp_id_token", validateOCPPIdToken)
	validate.RegisterValidation("ocpp_connector_id", validateOCPPConnectorID)
}

// validateOCPPIdToken mirrors the gateway's validateOCPPIdToken: at most 20
// alphanumeric characters, the OCPP 1.6 IdToken format.
func validateOCPPIdToken(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return len(value) <= 20 && idTokenPattern.MatchString(value)
}

// validateOCPPConnectorID mirrors the gateway's validateOCPPConnectorId:
// connector 0 means "the charge point as a whole", so zero and up are
// valid; there is no upper bound in the spec.
func validateOCPPConnectorID(fl validator.FieldLevel) bool {
	return fl.Field().Int() >= 0
}

// ValidatePayload runs go-playground/validator struct-tag validation over a
// decoded OCPP payload, matching the gateway's ValidateStruct but scoped
// to a single payload rather than a whole message envelope, since the
// session's action handler registry validates per-action (spec §4.3).
func ValidatePayload(payload interface{}) error {
	if payload == nil {
		return nil
	}
	if err := instance().Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", simerr.ErrValidation, err)
	}
	return nil
}

// ValidateChargingProfile applies the structural checks spec §4.6 requires
// before a SetChargingProfile is accepted, beyond what struct tags alone can
// express (strictly increasing startPeriod).
func ValidateChargingProfile(p ChargingProfile) error {
	if err := instance().Struct(p); err != nil {
		return fmt.Errorf("%w: %v", simerr.ErrValidation, err)
	}
	periods := p.ChargingSchedule.ChargingSchedulePeriod
	last := -1
	for i, period := range periods {
		if period.StartPeriod <= last {
			return fmt.Errorf("%w: chargingSchedulePeriod[%d].startPeriod %d is not strictly increasing", simerr.ErrValidation, i, period.StartPeriod)
		}
		last = period.StartPeriod
	}
	return nil
}
