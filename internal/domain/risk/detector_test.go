package risk

import (
	"reflect"
	"testing"
)

// assessmentScoring builds a minimal assessment with the given overall and
// per-category scores (in canonical category order).
func assessmentScoring(overall int, categories ...int) Assessment {
	a := Assessment{}
	for i, name := range CategoryNames {
		if i < len(categories) {
			cat := a.Category(name)
			cat.Score = categories[i]
			cat.Level = ScoreToLevel(categories[i])
			cat.Applicable = true
		}
	}
	a.Overall = OverallScore{Score: overall, Level: ScoreToLevel(overall)}
	return a
}

func TestCompareFirstAssessmentIsSignificant(t *testing.T) {
	cur := assessmentScoring(35, 35)
	d := Compare(nil, cur)
	if !d.Significant {
		t.Error("first assessment must be significant")
	}
	if d.ScoreDelta != 35 {
		t.Errorf("expected score delta 35, got %d", d.ScoreDelta)
	}
}

func TestCompareCriticalJump(t *testing.T) {
	prev := assessmentScoring(55, 55)
	cur := assessmentScoring(85, 85)

	d := Compare(&prev, cur)
	if !d.Critical {
		t.Error("delta of 30 must be critical")
	}
	if !d.Significant {
		t.Error("delta of 30 must be significant")
	}
	if !d.PriorityLevelChanged {
		t.Error("NORMAL -> CRITICAL must flag a priority change")
	}
	if d.ScoreDelta != 30 {
		t.Errorf("expected score delta 30, got %d", d.ScoreDelta)
	}
}

func TestComparePriorityChangeWithoutLargeDelta(t *testing.T) {
	// 58 -> 62 is only 4 points but crosses the HIGH boundary.
	prev := assessmentScoring(58)
	cur := assessmentScoring(62)

	d := Compare(&prev, cur)
	if d.Critical {
		t.Error("delta of 4 must not be critical")
	}
	if !d.PriorityLevelChanged {
		t.Error("crossing the HIGH boundary must flag a priority change")
	}
	if !d.Significant {
		t.Error("a priority change is always significant")
	}
}

func TestCompareSmallDeltaInsignificant(t *testing.T) {
	prev := assessmentScoring(42)
	cur := assessmentScoring(49)

	d := Compare(&prev, cur)
	if d.Significant || d.Critical || d.PriorityLevelChanged {
		t.Errorf("7-point move within NORMAL should be quiet, got %+v", d)
	}
}

func TestCompareChangedCategories(t *testing.T) {
	prev := assessmentScoring(40, 40, 10, 0, 0)
	cur := assessmentScoring(52, 55, 12, 0, 20)

	d := Compare(&prev, cur)
	want := []string{"cardiac", "medication"}
	if !reflect.DeepEqual(d.ChangedCategories, want) {
		t.Errorf("expected changed categories %v, got %v", want, d.ChangedCategories)
	}
}

func TestCompareDeterministic(t *testing.T) {
	prev := assessmentScoring(40, 40, 20, 10, 5)
	cur := assessmentScoring(72, 80, 20, 25, 5)

	first := Compare(&prev, cur)
	second := Compare(&prev, cur)
	if !reflect.DeepEqual(first, second) {
		t.Error("Compare is not deterministic for identical inputs")
	}
}

func TestCompareDirectionIndependentDelta(t *testing.T) {
	low := assessmentScoring(30)
	high := assessmentScoring(45)
	up := Compare(&low, high)
	down := Compare(&high, low)
	if up.ScoreDelta != 15 || down.ScoreDelta != 15 {
		t.Errorf("score delta must be absolute: up=%d down=%d", up.ScoreDelta, down.ScoreDelta)
	}
	if !down.Significant {
		t.Error("a 15-point improvement is still a significant change")
	}
}
