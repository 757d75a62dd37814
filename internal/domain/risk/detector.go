package risk

// Delta classifies the difference between two assessments for one patient.
type Delta struct {
	ScoreDelta           int      `json:"score_delta"`
	PriorityLevelChanged bool     `json:"priority_level_changed"`
	Significant          bool     `json:"significant"`
	Critical             bool     `json:"critical"`
	ChangedCategories    []string `json:"changed_categories,omitempty"`
}

// Thresholds for delta classification, in overall-score points.
const (
	significantDelta = 10
	criticalDelta    = 20
	categoryDelta    = 10
)

// Compare classifies the change from prev to cur. A nil prev means this is
// the first assessment and is always significant. Pure: identical inputs
// yield identical deltas.
func Compare(prev *Assessment, cur Assessment) Delta {
	if prev == nil {
		return Delta{
			ScoreDelta:           cur.Overall.Score,
			PriorityLevelChanged: true,
			Significant:          true,
			Critical:             cur.Overall.Score >= criticalDelta,
			ChangedCategories:    changedCategories(nil, cur),
		}
	}

	delta := cur.Overall.Score - prev.Overall.Score
	if delta < 0 {
		delta = -delta
	}

	d := Delta{
		ScoreDelta:           delta,
		PriorityLevelChanged: ScoreToPriority(prev.Overall.Score) != ScoreToPriority(cur.Overall.Score),
		Critical:             delta >= criticalDelta,
		ChangedCategories:    changedCategories(prev, cur),
	}
	d.Significant = delta >= significantDelta || d.PriorityLevelChanged
	return d
}

// changedCategories lists categories whose score moved by at least
// categoryDelta, in canonical order for deterministic output.
func changedCategories(prev *Assessment, cur Assessment) []string {
	var changed []string
	for _, name := range CategoryNames {
		curScore := cur.Category(name).Score
		prevScore := 0
		if prev != nil {
			prevScore = prev.Category(name).Score
		}
		diff := curScore - prevScore
		if diff < 0 {
			diff = -diff
		}
		if diff >= categoryDelta {
			changed = append(changed, name)
		}
	}
	return changed
}
