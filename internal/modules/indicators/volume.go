package indicators

import (
	"github.com/markcheno/go-talib"
)

// obvLookback is how many bars back the OBV slope is measured over
const obvLookback = 5

// CalculateVolume analyses current volume against its own moving averages
// and the on-balance-volume direction. Confirmation is true when the OBV
// direction agrees with the latest price move.
func CalculateVolume(closes []float64, volumes []int64) *VolumeResult {
	if len(volumes) < 20 || len(closes) != len(volumes) {
		return nil
	}

	vols := make([]float64, len(volumes))
	for i, v := range volumes {
		vols[i] = float64(v)
	}

	result := &VolumeResult{
		Current: volumes[len(volumes)-1],
	}
	if sma := lastOf(talib.Sma(vols, 20)); sma != nil {
		result.SMA20 = *sma
	}
	if len(vols) >= 50 {
		if sma := lastOf(talib.Sma(vols, 50)); sma != nil {
			result.SMA50 = *sma
		}
	}

	prev := vols[len(vols)-2]
	if prev > 0 {
		result.ChangePercent = (vols[len(vols)-1] - prev) / prev * 100
	}

	result.OBVDirection = obvDirection(closes, vols)

	priceUp := closes[len(closes)-1] > closes[len(closes)-2]
	result.Confirmation = (priceUp && result.OBVDirection == OBVRising) ||
		(!priceUp && result.OBVDirection == OBVFalling)

	return result
}

func obvDirection(closes, volumes []float64) string {
	obv := talib.Obv(closes, volumes)
	if len(obv) < obvLookback+1 {
		return OBVFlat
	}

	recent := obv[len(obv)-1]
	past := obv[len(obv)-1-obvLookback]
	switch {
	case recent > past:
		return OBVRising
	case recent < past:
		return OBVFalling
	default:
		return OBVFlat
	}
}
