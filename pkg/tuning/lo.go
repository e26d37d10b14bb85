package tuning

import (
	"math"

	"github.com/norasector/rigcore/pkg/radio"
)

const (
	loStep  = 100000 // Hz
	minIF   = 100000 // Hz
	intNMin = 10e6
	// Spurs at multiples of the PLL step must stay this far from the
	// frequency being protected.
	spurClearance = 1e6
	// TX below this tunes in plain integer-N without step selection.
	txStepMin = 30e6
)

var intNSteps = []float64{12.5e6, 10e6, 50e6 / 3}

// FirstLO returns the front end centre for an RX frequency: the highest
// 100 kHz multiple that leaves at least 100 kHz of IF below freq.
func FirstLO(freq float64) float64 {
	hz := int64(math.Round(freq))
	lo := hz / loStep * loStep
	for hz-lo < minIF {
		lo -= loStep
	}
	return float64(lo)
}

// rxLO is FirstLO kept inside rng. Near the bottom of the range the LO
// moves above freq instead, to the lowest 100 kHz multiple at least 100 kHz
// away, and the IF goes negative.
func rxLO(freq float64, rng radio.Range) float64 {
	lo := FirstLO(freq)
	if lo >= rng.Min {
		return lo
	}
	hz := int64(math.Round(freq)) + minIF
	return float64((hz + loStep - 1) / loStep * loStep)
}

// IntNRequest builds an integer-N tune request for target, choosing the
// first PLL step whose nearest multiple keeps its spurs clear of avoid.
// Below 10 MHz the driver's automatic mode is used.
func IntNRequest(target, avoid float64) radio.TuneRequest {
	req := radio.TuneRequest{Target: target, RF: target, Policy: radio.PolicyAuto}
	if target < intNMin {
		return req
	}

	for _, step := range intNSteps {
		rf := math.Round(target/step) * step
		if math.Abs(rf-avoid) > spurClearance {
			req.RF = rf
			req.Policy = radio.PolicyManual
			req.IntN = true
			req.Step = step
			return req
		}
	}

	// Every step lands near avoid; move one 12.5 MHz step away from it.
	step := intNSteps[0]
	n := math.Round(target / step)
	rf := n * step
	if math.Abs(rf-avoid) < spurClearance {
		if rf > avoid {
			n--
		} else {
			n++
		}
		rf = n * step
	}
	req.RF = rf
	req.Policy = radio.PolicyManual
	req.IntN = true
	req.Step = step
	return req
}

// rxRequest is the request for an RX front end centred at lo.
func rxRequest(lo float64, intN bool) radio.TuneRequest {
	if !intN {
		return radio.TuneRequest{Target: lo, RF: lo}
	}
	return IntNRequest(lo, lo)
}

// txRequest is the request for a TX carrier at freq while the receiver is
// parked at rxFreq.
func txRequest(freq, rxFreq float64, intN bool) radio.TuneRequest {
	switch {
	case !intN:
		return radio.TuneRequest{Target: freq, RF: freq}
	case freq > txStepMin:
		return IntNRequest(freq, rxFreq)
	default:
		return radio.TuneRequest{Target: freq, RF: freq, IntN: true}
	}
}
