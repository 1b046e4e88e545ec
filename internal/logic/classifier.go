package logic

// VitalsAbnormal reports whether heart rate or SpO2 is outside the
// configured safe range. Used as corroboration for the pre-fall band.
func VitalsAbnormal(s Sample, th Thresholds) bool {
	if s.HeartRateBpm < th.HeartRateLowBpm || s.HeartRateBpm > th.HeartRateHighBpm {
		return true
	}
	return s.SpO2Pct < th.SpO2LowPct
}

// Classify maps the previous state and the latest sample to a new safety
// state. Pure function: no side effects, no blocking, same inputs always
// yield the same output.
//
// Rules are evaluated highest severity first. FALL_CONFIRMED is sticky:
// once entered, no sample can leave it; only an explicit wearer
// acknowledgment (Monitor.Reset) returns the state to NORMAL. An unworn
// belt cannot fall, so Worn gates both FallConfirmed and PreFall, but not
// SuddenMovement.
func Classify(prev SafetyState, s Sample, th Thresholds) SafetyState {
	if prev == StateFallConfirmed {
		return StateFallConfirmed
	}

	mag := s.AccelMagnitudeG
	switch {
	case mag > th.FallG && s.Worn:
		return StateFallConfirmed
	case mag > th.SuddenG && mag <= th.FallG:
		return StateSuddenMovement
	case mag > th.InstabilityG && mag <= th.SuddenG && s.Worn && VitalsAbnormal(s, th):
		return StatePreFall
	default:
		return StateNormal
	}
}
