package planner

import "math"

// DMGridParams are the inputs to the sensitivity-loss-bounded DM grid
// search (spec §4.1).
type DMGridParams struct {
	MinDM, MaxDM float64 // pc/cm^3
	MaxLoss      float64 // fraction, default 0.05

	IntrinsicWidthUS float64 // w_intr, microseconds
	TSampUS          float64 // integration time, microseconds
	ChanWidthMHz     float64 // delta-ch
	BandwidthMHz     float64 // total bandwidth
	MeanFreqGHz      float64 // nu-bar
}

const dmDispersionConst = 8.3

// dmTrialStep is the fine trial-grid step used while walking from MinDM to
// MaxDM.
const dmTrialStep = 0.05

// smearWidth returns W0(dm): the pulse width (microseconds) at dm with zero
// added dispersion smearing across a DM step.
func smearWidth(dm float64, p DMGridParams) float64 {
	smear := dmDispersionConst * dm * p.ChanWidthMHz / (p.MeanFreqGHz * p.MeanFreqGHz * p.MeanFreqGHz)
	return math.Sqrt(p.IntrinsicWidthUS*p.IntrinsicWidthUS + p.TSampUS*p.TSampUS + smear*smear)
}

// loss computes loss(dm, deltaDM) = 1 - sqrt(W0(dm)/W1(dm,deltaDM)).
func loss(dm, deltaDM float64, p DMGridParams) float64 {
	w0 := smearWidth(dm, p)
	smear := dmDispersionConst * deltaDM * p.BandwidthMHz / (p.MeanFreqGHz * p.MeanFreqGHz * p.MeanFreqGHz)
	w1 := math.Sqrt(w0*w0 + smear*smear)
	return 1 - math.Sqrt(w0/w1)
}

// BuildDMGrid walks a fine trial grid from MinDM to MaxDM, appending a DM
// step whenever the sensitivity loss relative to the last accepted DM
// (evaluated at half the gap) exceeds MaxLoss. Returns []float64{0} if
// MaxDM <= 0.
func BuildDMGrid(p DMGridParams) []float64 {
	if p.MaxDM <= 0 {
		return []float64{0}
	}

	grid := []float64{p.MinDM}
	last := p.MinDM

	for dm := p.MinDM + dmTrialStep; dm <= p.MaxDM; dm += dmTrialStep {
		if loss(dm, (dm-last)/2, p) > p.MaxLoss {
			grid = append(grid, dm)
			last = dm
		}
	}

	return grid
}

// DataDelay returns the integer channel-0-relative time-sample delay at the
// given DM: round(4.149e-3 * dm * (freq[0]^-2 - freq[last]^-2) / inttime).
// freqGHz must be sorted ascending.
func DataDelay(dm float64, freqGHz []float64, intTimeS float64) int {
	if len(freqGHz) == 0 {
		return 0
	}
	fmin := freqGHz[0]
	fmax := freqGHz[len(freqGHz)-1]
	const dispConstSI = 4.149e-3 // seconds * GHz^2 * pc^-1 cm^3
	delaySeconds := dispConstSI * dm * (1/(fmin*fmin) - 1/(fmax*fmax))
	return int(math.Round(delaySeconds / intTimeS))
}

// PerChannelDelay returns, for each channel, the integer time-sample delay
// at the given DM relative to the highest-frequency channel (zero delay,
// arrives first). freqGHz must be sorted ascending; delay[0] equals
// DataDelay.
func PerChannelDelay(dm float64, freqGHz []float64, intTimeS float64) []int {
	if len(freqGHz) == 0 {
		return nil
	}
	fmax := freqGHz[len(freqGHz)-1]
	const dispConstSI = 4.149e-3
	delays := make([]int, len(freqGHz))
	for i, f := range freqGHz {
		delaySeconds := dispConstSI * dm * (1/(f*f) - 1/(fmax*fmax))
		delays[i] = int(math.Round(delaySeconds / intTimeS))
	}
	return delays
}
