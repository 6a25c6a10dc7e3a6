package profile

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/evse-sim/simulator/internal/ocpp"
)

// EffectiveLimit is the published snapshot of spec §3 "EffectiveLimit
// snapshot": the result of selecting among active profiles and converting
// to watts.
type EffectiveLimit struct {
	LimitW          float64
	RawLimit        float64
	RawUnit         ocpp.ChargingRateUnit
	SourceProfileID int
	SourcePurpose   ocpp.ChargingProfilePurpose
	StackLevel      int
	NextChangeIn    *time.Duration
	NextLimitW      *float64
	IsDefault       bool
}

var purposePriority = map[ocpp.ChargingProfilePurpose]int{
	ocpp.PurposeTxProfile:             3,
	ocpp.PurposeTxDefaultProfile:      2,
	ocpp.PurposeChargePointMaxProfile: 1,
}

// absoluteOrigin returns the time origin for an Absolute-kind schedule:
// startSchedule if present, else the acceptance time (spec §4.6).
func absoluteOrigin(p ocpp.ChargingProfile, acceptedAt time.Time) time.Time {
	if p.ChargingSchedule.StartSchedule != nil {
		return p.ChargingSchedule.StartSchedule.Time
	}
	return acceptedAt
}

// recurringDailyOrigin aligns to the hh:mm:ss of startSchedule at midnight
// of the current day, using yesterday if that's still in the future (spec
// §4.6).
func recurringDailyOrigin(p ocpp.ChargingProfile, now time.Time) time.Time {
	ss := time.Time{}
	if p.ChargingSchedule.StartSchedule != nil {
		ss = p.ChargingSchedule.StartSchedule.Time
	}
	loc := now.Location()
	candidate := time.Date(now.Year(), now.Month(), now.Day(), ss.Hour(), ss.Minute(), ss.Second(), 0, loc)
	if candidate.After(now) {
		candidate = candidate.AddDate(0, 0, -1)
	}
	return candidate
}

// recurringWeeklyOrigin aligns to the same weekday and hh:mm:ss as
// startSchedule, taking the most recent past occurrence (spec §4.6).
func recurringWeeklyOrigin(p ocpp.ChargingProfile, now time.Time) time.Time {
	ss := time.Time{}
	if p.ChargingSchedule.StartSchedule != nil {
		ss = p.ChargingSchedule.StartSchedule.Time
	}
	loc := now.Location()
	candidate := time.Date(now.Year(), now.Month(), now.Day(), ss.Hour(), ss.Minute(), ss.Second(), 0, loc)
	dayDiff := int(now.Weekday()) - int(ss.Weekday())
	if dayDiff < 0 {
		dayDiff += 7
	}
	candidate = candidate.AddDate(0, 0, -dayDiff)
	if candidate.After(now) {
		candidate = candidate.AddDate(0, 0, -7)
	}
	return candidate
}

// isActive implements spec §4.6 "Active-window check": validFrom/validTo
// bounds, plus Absolute duration expiry.
func isActive(p ocpp.ChargingProfile, acceptedAt, now time.Time) bool {
	if p.ValidFrom != nil && now.Before(p.ValidFrom.Time) {
		return false
	}
	if p.ValidTo != nil && now.After(p.ValidTo.Time) {
		return false
	}
	if p.ChargingProfileKind == ocpp.KindAbsolute && p.ChargingSchedule.Duration != nil {
		origin := absoluteOrigin(p, acceptedAt)
		if now.After(origin.Add(time.Duration(*p.ChargingSchedule.Duration) * time.Second)) {
			return false
		}
	}
	return true
}

// elapsedSeconds computes "elapsed" per spec §4.6's per-kind origin rules.
// ok is false when the profile yields no limit (e.g. Relative with no
// active transaction).
func elapsedSeconds(p ocpp.ChargingProfile, acceptedAt time.Time, tx TransactionState, now time.Time) (elapsed float64, ok bool) {
	var origin time.Time
	switch p.ChargingProfileKind {
	case ocpp.KindAbsolute:
		origin = absoluteOrigin(p, acceptedAt)
	case ocpp.KindRelative:
		if !tx.Active {
			return 0, false
		}
		origin = tx.StartedAt
	case ocpp.KindRecurring:
		if p.RecurrencyKind != nil && *p.RecurrencyKind == ocpp.RecurrencyWeekly {
			origin = recurringWeeklyOrigin(p, now)
		} else {
			origin = recurringDailyOrigin(p, now)
		}
	default:
		return 0, false
	}

	e := now.Sub(origin).Seconds()
	if e < 0 {
		return 0, false
	}

	if p.ChargingSchedule.Duration != nil {
		dur := float64(*p.ChargingSchedule.Duration)
		if p.ChargingProfileKind == ocpp.KindRecurring {
			if dur > 0 {
				// elapsed mod duration for recurring schedules (spec §4.6).
				e = mod(e, dur)
			}
		} else if e > dur {
			return 0, false
		}
	}
	return e, true
}

func mod(a, b float64) float64 {
	m := a
	for m >= b {
		m -= b
	}
	return m
}

// activePeriod locates the last period whose startPeriod <= elapsed (spec
// §4.6 "Locate the active period").
func activePeriod(periods []ocpp.ChargingSchedulePeriod, elapsed float64) (ocpp.ChargingSchedulePeriod, bool) {
	var best ocpp.ChargingSchedulePeriod
	found := false
	for _, p := range periods {
		if float64(p.StartPeriod) <= elapsed {
			if !found || p.StartPeriod > best.StartPeriod {
				best = p
				found = true
			}
		}
	}
	return best, found
}

// nextPeriodAfter returns the period (if any) whose startPeriod is the
// smallest one strictly greater than elapsed, used to populate
// nextChangeIn/nextLimit.
func nextPeriodAfter(periods []ocpp.ChargingSchedulePeriod, elapsed float64) (ocpp.ChargingSchedulePeriod, bool) {
	var best ocpp.ChargingSchedulePeriod
	found := false
	for _, p := range periods {
		if float64(p.StartPeriod) > elapsed {
			if !found || p.StartPeriod < best.StartPeriod {
				best = p
				found = true
			}
		}
	}
	return best, found
}

// toWatts converts a raw schedule limit to watts (spec §4.6 "Convert to
// watts").
func toWatts(limit float64, unit ocpp.ChargingRateUnit, numberPhases *int, cfg ConnectorConfig) float64 {
	if unit == ocpp.RateUnitW {
		return limit
	}
	phases := cfg.Phases
	if numberPhases != nil {
		phases = *numberPhases
	}
	return limit * cfg.Voltage * float64(phases)
}

// candidateLimit evaluates one profile at `now` and returns its watt limit
// if it is currently active and yields one.
func candidateLimit(p ocpp.ChargingProfile, acceptedAt time.Time, tx TransactionState, now time.Time, cfg ConnectorConfig) (watts float64, next *time.Duration, nextWatts *float64, ok bool) {
	if !isActive(p, acceptedAt, now) {
		return 0, nil, nil, false
	}
	elapsed, ok := elapsedSeconds(p, acceptedAt, tx, now)
	if !ok {
		return 0, nil, nil, false
	}
	period, found := activePeriod(p.ChargingSchedule.ChargingSchedulePeriod, elapsed)
	if !found {
		return 0, nil, nil, false
	}
	w := toWatts(period.Limit, p.ChargingSchedule.ChargingRateUnit, period.NumberPhases, cfg)
	if p.ChargingSchedule.MinChargingRate != nil {
		minW := toWatts(*p.ChargingSchedule.MinChargingRate, p.ChargingSchedule.ChargingRateUnit, period.NumberPhases, cfg)
		if w < minW {
			w = minW
		}
	}

	if np, found := nextPeriodAfter(p.ChargingSchedule.ChargingSchedulePeriod, elapsed); found {
		d := time.Duration(float64(np.StartPeriod)-elapsed) * time.Second
		nw := toWatts(np.Limit, p.ChargingSchedule.ChargingRateUnit, np.NumberPhases, cfg)
		next = &d
		nextWatts = &nw
	}
	return w, next, nextWatts, true
}

// Effective implements spec §4.6 "Selecting the effective profile":
// purpose-priority then stack-level descending, first to yield a non-null
// limit wins; otherwise the default snapshot at maxPowerW.
func (s *Store) Effective(connectorID int, tx TransactionState, now time.Time, cfg ConnectorConfig, maxPowerW float64) EffectiveLimit {
	profiles := s.Profiles(connectorID)
	sort.Slice(profiles, func(i, j int) bool {
		pi, pj := purposePriority[profiles[i].ChargingProfilePurpose], purposePriority[profiles[j].ChargingProfilePurpose]
		if pi != pj {
			return pi > pj
		}
		return profiles[i].StackLevel > profiles[j].StackLevel
	})

	for _, p := range profiles {
		acceptedAt, _ := s.acceptedAt(connectorID, p.ChargingProfileId)
		w, next, nextW, ok := candidateLimit(p, acceptedAt, tx, now, cfg)
		if !ok {
			continue
		}
		if w < 0 {
			w = 0
		}
		if w > maxPowerW {
			w = maxPowerW
		}
		return EffectiveLimit{
			LimitW:          w,
			RawLimit:        w,
			RawUnit:         p.ChargingSchedule.ChargingRateUnit,
			SourceProfileID: p.ChargingProfileId,
			SourcePurpose:   p.ChargingProfilePurpose,
			StackLevel:      p.StackLevel,
			NextChangeIn:    next,
			NextLimitW:      nextW,
		}
	}

	return EffectiveLimit{LimitW: maxPowerW, RawLimit: maxPowerW, RawUnit: ocpp.RateUnitW, IsDefault: true}
}

// CompositeSchedule implements spec §4.6 "Composite schedule
// (GetCompositeSchedule)": walk the window [now, now+duration) at every
// boundary where the effective limit could change, collapsing consecutive
// equal-limit periods.
func (s *Store) CompositeSchedule(connectorID int, windowSeconds int, rateUnit ocpp.ChargingRateUnit, tx TransactionState, now time.Time, cfg ConnectorConfig, maxPowerW float64) ocpp.ChargingSchedule {
	boundaries := map[int]struct{}{0: {}}
	profiles := s.Profiles(connectorID)
	for _, p := range profiles {
		acceptedAt, _ := s.acceptedAt(connectorID, p.ChargingProfileId)
		elapsedNow, ok := elapsedSeconds(p, acceptedAt, tx, now)
		if !ok {
			continue
		}
		for _, period := range p.ChargingSchedule.ChargingSchedulePeriod {
			offset := float64(period.StartPeriod) - elapsedNow
			if offset >= 0 && offset < float64(windowSeconds) {
				boundaries[int(offset)] = struct{}{}
			}
		}
		if p.ValidTo != nil {
			offset := p.ValidTo.Time.Sub(now).Seconds()
			if offset > 0 && offset < float64(windowSeconds) {
				boundaries[int(offset)] = struct{}{}
			}
		}
	}

	keys := make([]int, 0, len(boundaries))
	for k := range boundaries {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var out []ocpp.ChargingSchedulePeriod
	var lastLimit float64 = -1
	ambiguousPhases := false
	for _, offset := range keys {
		t := now.Add(time.Duration(offset) * time.Second)
		eff := s.Effective(connectorID, tx, t, cfg, maxPowerW)
		limit := eff.LimitW
		if rateUnit == ocpp.RateUnitA {
			if cfg.Voltage > 0 {
				limit = limit / (cfg.Voltage * float64(cfg.Phases))
			}
			if eff.RawUnit == ocpp.RateUnitW {
				ambiguousPhases = true
			}
		}
		if len(out) > 0 && limit == lastLimit {
			continue // collapse consecutive equal-limit periods
		}
		out = append(out, ocpp.ChargingSchedulePeriod{StartPeriod: offset, Limit: limit})
		lastLimit = limit
	}
	if len(out) == 0 {
		limit := maxPowerW
		if rateUnit == ocpp.RateUnitA && cfg.Voltage > 0 {
			limit = limit / (cfg.Voltage * float64(cfg.Phases))
		}
		out = append(out, ocpp.ChargingSchedulePeriod{StartPeriod: 0, Limit: limit})
	}

	if ambiguousPhases {
		log.Warn().
			Int("connector_id", connectorID).
			Int("phases", cfg.Phases).
			Float64("voltage", cfg.Voltage).
			Msg("profile: ambiguous W->A conversion, falling back to connector default phase count")
	}
	dur := windowSeconds
	return ocpp.ChargingSchedule{
		Duration:               &dur,
		ChargingRateUnit:       rateUnit,
		ChargingSchedulePeriod: out,
	}
}
