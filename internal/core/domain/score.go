package domain

// NeutralScore substitutes for a missing classifier or anomaly input. An
// untrained scorer and an empty feature window are expected steady-state
// conditions, not errors.
const NeutralScore = 0.5

// FeatureVector is one behavioral feature snapshot keyed by feature name.
type FeatureVector map[string]float64

// Clone returns an independent copy of the vector.
func (f FeatureVector) Clone() FeatureVector {
	if f == nil {
		return nil
	}
	out := make(FeatureVector, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ScoreSample is one fused evaluation. Immutable once computed.
type ScoreSample struct {
	AuthConfidence     float64
	AnomalyScore       float64
	CombinedConfidence float64
}

// FuseScores combines a classifier confidence and an anomaly score into one
// combined confidence: (auth + (1 - anomaly)) / 2. Nil inputs substitute the
// neutral value instead of failing.
func FuseScores(authConfidence, anomalyScore *float64) ScoreSample {
	auth := NeutralScore
	if authConfidence != nil {
		auth = ClampUnit(*authConfidence)
	}
	anomaly := NeutralScore
	if anomalyScore != nil {
		anomaly = ClampUnit(*anomalyScore)
	}

	return ScoreSample{
		AuthConfidence:     auth,
		AnomalyScore:       anomaly,
		CombinedConfidence: (auth + (1 - anomaly)) / 2,
	}
}

// NeutralSample returns the fused result for a scorer that has nothing to say.
func NeutralSample() ScoreSample {
	return FuseScores(nil, nil)
}

// ClampUnit restricts v to the [0, 1] interval.
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
