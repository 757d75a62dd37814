package risk

// Level is the fine-grained severity label attached to a 0-100 risk score.
type Level string

const (
	LevelLow      Level = "Low"
	LevelModerate Level = "Moderate"
	LevelHigh     Level = "High"
	LevelCritical Level = "Critical"
)

// Priority is the coarse triage bucket used for queue ordering.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityNormal   Priority = "NORMAL"
)

// Disclaimer is carried on every outward-facing payload. Fixed, non-negotiable.
const Disclaimer = "For physician review only. Not for diagnostic use."

// ScoreToLevel maps a 0-100 score to its severity label. This is the single
// definition of the thresholds; the triage priority mapping below uses the
// same boundaries so a score is never described with inconsistent severity
// language.
func ScoreToLevel(score int) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelModerate
	default:
		return LevelLow
	}
}

// ScoreToPriority maps a 0-100 overall score to its triage bucket.
func ScoreToPriority(score int) Priority {
	switch {
	case score >= 80:
		return PriorityCritical
	case score >= 60:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// Rank orders priorities for queue comparison; lower sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	default:
		return 2
	}
}

// RecommendationFor returns the non-diagnostic guidance text for a level.
func RecommendationFor(level Level) string {
	switch level {
	case LevelCritical:
		return "Seek immediate medical evaluation. Escalate to emergency assessment now."
	case LevelHigh:
		return "Seek immediate medical evaluation. Consider emergency assessment if symptoms worsen."
	case LevelModerate:
		return "Schedule a physician consultation within 24-48 hours. Monitor vitals."
	default:
		return "Continue routine monitoring. Schedule regular physician checkup."
	}
}
