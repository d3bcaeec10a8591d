package service

const (
	DecisionDuplicate  = "duplicate"
	DecisionBorderline = "borderline"
	DecisionDistinct   = "distinct"
)

// DedupConfig holds the tuning knobs for candidate selection and scoring.
// RadiusM is the proximity radius R, WindowH the temporal window W in hours,
// Threshold the duplicate cutoff T.
type DedupConfig struct {
	RadiusM         float64
	WindowH         float64
	Threshold       float64
	SimilarityFloor float64
	BorderlineMerge bool
}

// Score combines text similarity, spatial distance and report age into one
// score and a three-way decision. Pure and deterministic: identical inputs
// always yield identical decisions.
func Score(cfg DedupConfig, textSimilarity, distanceM, ageHours float64) (float64, string) {
	geoFactor := 0.4
	switch {
	case distanceM < cfg.RadiusM:
		geoFactor = 1.0
	case distanceM < 2*cfg.RadiusM:
		geoFactor = 0.8
	}

	timeFactor := 0.5
	switch {
	case ageHours < 24:
		timeFactor = 1.0
	case ageHours < cfg.WindowH:
		timeFactor = 0.8
	}

	score := 0.7*textSimilarity + 0.3*((geoFactor+timeFactor)/2)

	floor := cfg.Threshold - 0.1
	if floor < 0.6 {
		floor = 0.6
	}

	switch {
	case score >= cfg.Threshold:
		return score, DecisionDuplicate
	case score >= floor:
		return score, DecisionBorderline
	default:
		return score, DecisionDistinct
	}
}
