package profile

import (
	"testing"
	"time"

	"github.com/evse-sim/simulator/internal/ocpp"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAbsoluteTxProfileLimitsMeterDerivedPower(t *testing.T) {
	s := NewStore()
	now := mustTime("2025-01-01T00:00:00Z")
	profile := ocpp.ChargingProfile{
		ChargingProfileId:      1,
		StackLevel:             0,
		ChargingProfilePurpose: ocpp.PurposeTxProfile,
		ChargingProfileKind:    ocpp.KindAbsolute,
		ChargingSchedule: ocpp.ChargingSchedule{
			ChargingRateUnit: ocpp.RateUnitW,
			ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 7000},
			},
		},
	}
	tx := TransactionState{Active: true, TransactionID: 1, StartedAt: now}
	status, err := s.Accept(1, profile, tx, now)
	if err != nil || status != ocpp.ChargingProfileAccepted {
		t.Fatalf("accept failed: %v %v", status, err)
	}

	eff := s.Effective(1, tx, now, DefaultConnectorConfig(), 22000)
	if eff.LimitW != 7000 {
		t.Fatalf("expected 7000W, got %v", eff.LimitW)
	}
}

func TestStackingEviction(t *testing.T) {
	s := NewStore()
	now := mustTime("2025-01-01T00:00:00Z")
	mk := func(id, stack int) ocpp.ChargingProfile {
		return ocpp.ChargingProfile{
			ChargingProfileId:      id,
			StackLevel:             stack,
			ChargingProfilePurpose: ocpp.PurposeTxDefaultProfile,
			ChargingProfileKind:    ocpp.KindAbsolute,
			ChargingSchedule: ocpp.ChargingSchedule{
				ChargingRateUnit: ocpp.RateUnitW,
				ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{
					{StartPeriod: 0, Limit: float64(1000 * (stack + 1))},
				},
			},
		}
	}
	tx := TransactionState{}

	if _, err := checkAccept(s, 1, mk(1, 0), tx, now); err != nil {
		t.Fatal(err)
	}
	if _, err := checkAccept(s, 1, mk(2, 1), tx, now); err != nil {
		t.Fatal(err)
	}

	eff := s.Effective(1, tx, now, DefaultConnectorConfig(), 22000)
	if eff.SourceProfileID != 2 {
		t.Fatalf("expected profile 2 to win, got %d", eff.SourceProfileID)
	}

	// id=2 (stack 1) already evicted id=1 (stack 0 <= 1); id=3 (stack 0)
	// evicts nothing since id=2's stack 1 > 0, so ids 2 and 3 remain and id=2
	// still wins.
	if _, err := checkAccept(s, 1, mk(3, 0), tx, now); err != nil {
		t.Fatal(err)
	}
	profiles := s.Profiles(1)
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles remaining, got %d", len(profiles))
	}
	eff = s.Effective(1, tx, now, DefaultConnectorConfig(), 22000)
	if eff.SourceProfileID != 2 {
		t.Fatalf("expected profile 2 to still win, got %d", eff.SourceProfileID)
	}
}

func checkAccept(s *Store, connectorID int, p ocpp.ChargingProfile, tx TransactionState, now time.Time) (ocpp.ChargingProfileStatus, error) {
	status, err := s.Accept(connectorID, p, tx, now)
	if status != ocpp.ChargingProfileAccepted {
		return status, err
	}
	return status, nil
}

func TestClearChargingProfileByPurpose(t *testing.T) {
	s := NewStore()
	now := mustTime("2025-01-01T00:00:00Z")
	tx := TransactionState{Active: true, TransactionID: 1, StartedAt: now}

	txDefault := ocpp.ChargingProfile{
		ChargingProfileId: 1, ChargingProfilePurpose: ocpp.PurposeTxDefaultProfile,
		ChargingProfileKind: ocpp.KindAbsolute,
		ChargingSchedule: ocpp.ChargingSchedule{ChargingRateUnit: ocpp.RateUnitW,
			ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{{StartPeriod: 0, Limit: 1000}}},
	}
	txProfile := ocpp.ChargingProfile{
		ChargingProfileId: 2, ChargingProfilePurpose: ocpp.PurposeTxProfile,
		ChargingProfileKind: ocpp.KindAbsolute,
		ChargingSchedule: ocpp.ChargingSchedule{ChargingRateUnit: ocpp.RateUnitW,
			ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{{StartPeriod: 0, Limit: 2000}}},
	}
	if _, err := s.Accept(1, txDefault, tx, now); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Accept(1, txProfile, tx, now); err != nil {
		t.Fatal(err)
	}

	purpose := ocpp.PurposeTxDefaultProfile
	removed := s.Clear(ocpp.ClearChargingProfileCriteria{ChargingProfilePurpose: &purpose})
	if len(removed) != 1 || removed[0] != 1 {
		t.Fatalf("expected to remove profile 1, got %v", removed)
	}

	removed = s.Clear(ocpp.ClearChargingProfileCriteria{ChargingProfilePurpose: &purpose})
	if len(removed) != 0 {
		t.Fatalf("expected no further removals, got %v", removed)
	}
}

func TestRelativeProfileYieldsNoLimitBeforeTransactionStart(t *testing.T) {
	s := NewStore()
	now := mustTime("2025-01-01T00:00:00Z")
	p := ocpp.ChargingProfile{
		ChargingProfileId: 1, ChargingProfilePurpose: ocpp.PurposeTxProfile,
		ChargingProfileKind: ocpp.KindRelative,
		ChargingSchedule: ocpp.ChargingSchedule{ChargingRateUnit: ocpp.RateUnitW,
			ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{{StartPeriod: 0, Limit: 5000}}},
	}
	noTx := TransactionState{Active: false}
	if _, err := s.Accept(1, p, noTx, now); err != nil {
		t.Fatal(err)
	}
	eff := s.Effective(1, noTx, now, DefaultConnectorConfig(), 22000)
	if !eff.IsDefault {
		t.Fatalf("expected default limit before transaction start, got %+v", eff)
	}
}

func TestAmpsToWattsConversion(t *testing.T) {
	s := NewStore()
	now := mustTime("2025-01-01T00:00:00Z")
	tx := TransactionState{Active: true, TransactionID: 1, StartedAt: now}
	p := ocpp.ChargingProfile{
		ChargingProfileId: 1, ChargingProfilePurpose: ocpp.PurposeTxProfile,
		ChargingProfileKind: ocpp.KindAbsolute,
		ChargingSchedule: ocpp.ChargingSchedule{ChargingRateUnit: ocpp.RateUnitA,
			ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{{StartPeriod: 0, Limit: 16}}},
	}
	if _, err := s.Accept(1, p, tx, now); err != nil {
		t.Fatal(err)
	}
	eff := s.Effective(1, tx, now, ConnectorConfig{Voltage: 230, Phases: 3}, 22000)
	want := 16.0 * 230 * 3
	if eff.LimitW != want {
		t.Fatalf("expected %v W, got %v", want, eff.LimitW)
	}
}
