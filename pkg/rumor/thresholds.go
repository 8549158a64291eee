package rumor

import "math"

// Thresholds are the round limits for each rumor phase, derived from the
// number of known peers.
//
// Terminate >= Cold >= Hot always holds.
type Thresholds struct {
	// Hot is the last push counter value at which a rumor is pushed.
	Hot uint8 `json:"hot"`
	// Cold is the last push counter value at which a rumor is offered in
	// response to pull requests.
	Cold uint8 `json:"cold"`
	// Terminate is the last age at which a rumor circulates at all.
	Terminate uint8 `json:"terminate"`
}

// thresholdsFor computes the thresholds for n known peers.
//
// A rumor needs roughly ln(ln(n)) rounds to saturate the cluster, then is
// offered on pull for the same again, with ln(n) rounds as a hard cutoff.
func thresholdsFor(n uint64) Thresholds {
	ln := math.Log(float64(n))
	hot := max(1, floorRounds(math.Log(ln)))
	cold := max(2, 2*hot)
	return Thresholds{
		Hot:       hot,
		Cold:      cold,
		Terminate: max(cold, floorRounds(ln)),
	}
}

// floorRounds converts a logarithm to a round count. ln(0) and ln(1) make
// the nested logarithm -Inf or NaN, so anything that isn't positive is
// clamped to zero.
func floorRounds(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	// The caller doubles Hot, so saturate well within the counter range.
	if v >= math.MaxUint8/2 {
		return math.MaxUint8 / 2
	}
	return uint8(math.Floor(v))
}
