// Package risk implements the deterministic clinical risk model: four
// category scorers (cardiac, respiratory, infection, medication), a
// fixed-weight ensemble, and the change detector that classifies the
// difference between two assessments. Everything in this package is a pure
// function of its inputs; no shared state, no clocks.
package risk

// Vitals holds the most recent vital signs for a patient. Pointer fields are
// nil when the measurement is absent; BP is kept in its raw "systolic/diastolic"
// string form and parsed defensively.
type Vitals struct {
	BP        string   `json:"bp,omitempty"`
	HeartRate *int     `json:"hr,omitempty"`
	SpO2      *int     `json:"spo2,omitempty"`
	TempC     *float64 `json:"temp,omitempty"`
	RespRate  *int     `json:"rr,omitempty"`
}

// LabResult is a single flagged lab value.
type LabResult struct {
	TestName string  `json:"test_name"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit,omitempty"`
	Flag     string  `json:"flag,omitempty"` // "", "abnormal", "critical"
}

// PatientSnapshot is the committed clinical state the model scores against.
// It is supplied by the persistence collaborator and treated as read-only.
type PatientSnapshot struct {
	PatientID   string      `json:"patient_id"`
	TenantID    string      `json:"tenant_id"`
	Age         int         `json:"age"`
	Gender      string      `json:"gender,omitempty"`
	Vitals      Vitals      `json:"vitals"`
	Symptoms    []string    `json:"symptoms,omitempty"`
	History     []string    `json:"medical_history,omitempty"`
	Medications []string    `json:"medications,omitempty"`
	Labs        []LabResult `json:"lab_results,omitempty"`
}

// CategoryScore is the per-category output of the risk model.
type CategoryScore struct {
	Score           int      `json:"score"`
	Level           Level    `json:"level"`
	Factors         []string `json:"factors,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Confidence      int      `json:"confidence"`
	Applicable      bool     `json:"applicable"`
}

// OverallScore is the ensemble result across applicable categories.
type OverallScore struct {
	Score          int    `json:"score"`
	Level          Level  `json:"level"`
	Confidence     int    `json:"confidence"`
	Explanation    string `json:"explanation"`
	Recommendation string `json:"recommendation"`
}

// Assessment is an immutable risk assessment. A new event always produces a
// new Assessment; nothing mutates one in place.
type Assessment struct {
	Cardiac     CategoryScore `json:"cardiac"`
	Respiratory CategoryScore `json:"respiratory"`
	Infection   CategoryScore `json:"infection"`
	Medication  CategoryScore `json:"medication"`
	Overall     OverallScore  `json:"overall"`

	RequiresImmediateAttention bool `json:"requires_immediate_attention"`
}

// CategoryNames lists the four model categories in their canonical order.
var CategoryNames = []string{"cardiac", "respiratory", "infection", "medication"}

// Category returns the named category score, or nil for an unknown name.
func (a *Assessment) Category(name string) *CategoryScore {
	switch name {
	case "cardiac":
		return &a.Cardiac
	case "respiratory":
		return &a.Respiratory
	case "infection":
		return &a.Infection
	case "medication":
		return &a.Medication
	}
	return nil
}
