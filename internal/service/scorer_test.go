package service

import "testing"

var testCfg = DedupConfig{
	RadiusM:         120,
	WindowH:         48,
	Threshold:       0.85,
	SimilarityFloor: 0.7,
	BorderlineMerge: true,
}

func TestScoreConcreteDuplicate(t *testing.T) {
	// Same corner, one hour apart: geo and time factors both 1.0.
	score, decision := Score(testCfg, 0.9, 0, 1)
	if decision != DecisionDuplicate {
		t.Fatalf("expected duplicate, got %s (score %f)", decision, score)
	}
	if score < 0.929 || score > 0.931 {
		t.Fatalf("expected score 0.93, got %f", score)
	}
}

func TestScoreDeterministic(t *testing.T) {
	for _, tc := range [][3]float64{
		{0.9, 0, 1},
		{0.75, 300, 30},
		{0.5, 5000, 100},
	} {
		s1, d1 := Score(testCfg, tc[0], tc[1], tc[2])
		s2, d2 := Score(testCfg, tc[0], tc[1], tc[2])
		if s1 != s2 || d1 != d2 {
			t.Fatalf("non-deterministic result for %v: (%f,%s) vs (%f,%s)", tc, s1, d1, s2, d2)
		}
	}
}

func TestScoreAtThresholdIsDuplicate(t *testing.T) {
	score, _ := Score(testCfg, 0.8, 0, 1)

	cfg := testCfg
	cfg.Threshold = score
	_, decision := Score(cfg, 0.8, 0, 1)
	if decision != DecisionDuplicate {
		t.Fatalf("score exactly at threshold must be duplicate, got %s", decision)
	}
}

func TestScoreBorderlineBand(t *testing.T) {
	// 0.7*0.71 + 0.3*1.0 = 0.797, inside [0.75, 0.85) with T=0.85.
	score, decision := Score(testCfg, 0.71, 0, 1)
	if decision != DecisionBorderline {
		t.Fatalf("expected borderline, got %s (score %f)", decision, score)
	}
}

func TestScoreBelowFloorIsDistinct(t *testing.T) {
	// 0.7*0.5 + 0.3*0.45 = 0.485, well below the borderline floor.
	score, decision := Score(testCfg, 0.5, 5000, 100)
	if decision != DecisionDistinct {
		t.Fatalf("expected distinct, got %s (score %f)", decision, score)
	}
}

func TestScoreFloorNeverBelowPointSix(t *testing.T) {
	cfg := testCfg
	cfg.Threshold = 0.65
	// T-0.1 would put the floor at 0.55; the clamp keeps it at 0.6.
	// 0.7*0.7 + 0.3*0.45 = 0.625, inside [0.6, 0.65) -> borderline.
	score, decision := Score(cfg, 0.7, 5000, 100)
	if score < 0.6 || score >= cfg.Threshold {
		t.Fatalf("fixture drifted out of band: %f", score)
	}
	if decision != DecisionBorderline {
		t.Fatalf("expected borderline above clamped floor, got %s", decision)
	}
}
