package risk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Ensemble weights per category. When a category is inapplicable its weight
// is excluded and the remaining weights are renormalized to sum to 1, so the
// overall score is never computed against a mismatched denominator.
const (
	weightCardiac     = 0.30
	weightRespiratory = 0.25
	weightInfection   = 0.25
	weightMedication  = 0.20
)

// HighRiskMedications lists narrow-therapeutic-index and otherwise
// high-alert drugs whose presence raises medication risk on its own.
var HighRiskMedications = []string{
	"warfarin", "insulin", "digoxin", "methotrexate", "lithium",
	"amiodarone", "heparin", "chemotherapy",
}

// interactionPair is a known dangerous drug combination.
type interactionPair struct {
	a, b     string
	critical bool
	message  string
}

var knownInteractions = []interactionPair{
	{"warfarin", "aspirin", false, "increased bleeding risk"},
	{"warfarin", "ibuprofen", false, "increased bleeding risk"},
	{"lisinopril", "spironolactone", false, "risk of hyperkalemia"},
	{"metformin", "contrast", false, "risk of lactic acidosis"},
	{"simvastatin", "clarithromycin", true, "risk of rhabdomyolysis"},
}

// Scorer computes risk assessments. It holds no state and is safe to share
// across goroutines.
type Scorer struct{}

// NewScorer returns the shared risk model.
func NewScorer() *Scorer { return &Scorer{} }

// Compute scores a patient snapshot. Pure: the same snapshot always yields
// the same Assessment. Absent or unparseable values contribute zero.
func (s *Scorer) Compute(snap PatientSnapshot) Assessment {
	cardiac := scoreCardiac(snap)
	respiratory := scoreRespiratory(snap)
	infection := scoreInfection(snap)
	medication := scoreMedication(snap)

	a := Assessment{
		Cardiac:     cardiac.finish(),
		Respiratory: respiratory.finish(),
		Infection:   infection.finish(),
		Medication:  medication.finish(),
	}
	a.RequiresImmediateAttention = cardiac.critical || respiratory.critical ||
		infection.critical || medication.critical
	a.Overall = combine(&a, snap)
	return a
}

// combine produces the weighted ensemble across applicable categories.
func combine(a *Assessment, snap PatientSnapshot) OverallScore {
	type weighted struct {
		cat    *CategoryScore
		weight float64
	}
	all := []weighted{
		{&a.Cardiac, weightCardiac},
		{&a.Respiratory, weightRespiratory},
		{&a.Infection, weightInfection},
		{&a.Medication, weightMedication},
	}

	var totalWeight, sum, confSum float64
	var present int
	for _, w := range all {
		if !w.cat.Applicable {
			continue
		}
		totalWeight += w.weight
		sum += float64(w.cat.Score) * w.weight
		confSum += float64(w.cat.Confidence)
		present++
	}

	var score int
	if totalWeight > 0 {
		score = clampScore(int(math.Round(sum / totalWeight)))
	}
	confidence := 70
	if present > 0 {
		confidence = int(math.Round(confSum / float64(present)))
	}

	level := ScoreToLevel(score)
	return OverallScore{
		Score:          score,
		Level:          level,
		Confidence:     confidence,
		Explanation:    explain(a, snap, score, level),
		Recommendation: RecommendationFor(level),
	}
}

// explain builds the human-readable summary shown to clinicians.
func explain(a *Assessment, snap PatientSnapshot, score int, level Level) string {
	var drivers []string
	for _, name := range CategoryNames {
		cat := a.Category(name)
		if !cat.Applicable {
			continue
		}
		for i, f := range cat.Factors {
			if i >= 2 {
				break
			}
			drivers = append(drivers, f)
		}
	}

	head := fmt.Sprintf("Based on current patient state (age %d),", snap.Age)
	if len(drivers) == 0 {
		return head + " vital signs and findings are within acceptable ranges. " +
			RecommendationFor(level)
	}
	if len(drivers) > 3 {
		drivers = drivers[:3]
	}
	return fmt.Sprintf("%s the primary risk drivers are: %s. Overall risk score %d (%s).",
		head, strings.Join(drivers, "; "), score, level)
}

// ---------------------------------------------------------------------------
// Category models
// ---------------------------------------------------------------------------

// acc accumulates factor contributions for one category.
type acc struct {
	score    float64
	factors  []string
	recs     []string
	critical bool
	inputs   int // usable inputs seen; zero means the category is inapplicable
	certain  bool // an explicit diagnosis or measured vital backs the score
}

// add records a factor contribution of min(cap, excess*scale) points.
func (c *acc) add(capPts, excess, scale float64, factor string) {
	pts := excess * scale
	if pts <= 0 {
		return
	}
	if pts > capPts {
		pts = capPts
	}
	c.score += pts
	c.factors = append(c.factors, factor)
}

// addFixed records a flat contribution.
func (c *acc) addFixed(pts float64, factor string) {
	if pts <= 0 {
		return
	}
	c.score += pts
	c.factors = append(c.factors, factor)
}

// addCritical records a contribution that on its own warrants immediate review.
func (c *acc) addCritical(pts float64, factor, rec string) {
	c.addFixed(pts, factor)
	c.critical = true
	if rec != "" {
		c.recs = append(c.recs, rec)
	}
}

func (c *acc) finish() CategoryScore {
	score := clampScore(int(math.Round(c.score)))
	conf := 75
	if c.certain {
		conf += 10
	}
	if c.inputs >= 3 {
		conf += 5
	}
	if conf > 90 {
		conf = 90
	}
	cs := CategoryScore{
		Score:           score,
		Level:           ScoreToLevel(score),
		Factors:         c.factors,
		Recommendations: c.recs,
		Confidence:      conf,
		Applicable:      c.inputs > 0,
	}
	if !cs.Applicable {
		cs.Confidence = 70
	}
	return cs
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// parseBP splits a "systolic/diastolic" string; ok is false on any garbage.
func parseBP(bp string) (sys, dia int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(bp), "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	sys, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	dia, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || sys <= 0 || dia <= 0 {
		return 0, 0, false
	}
	return sys, dia, true
}

func hasTerm(haystack []string, terms ...string) bool {
	for _, h := range haystack {
		h = strings.ToLower(h)
		for _, t := range terms {
			if strings.Contains(h, t) {
				return true
			}
		}
	}
	return false
}

func scoreCardiac(snap PatientSnapshot) *acc {
	c := &acc{}

	var crisis bool
	if sys, dia, ok := parseBP(snap.Vitals.BP); ok {
		c.inputs++
		c.certain = true
		if sys >= 180 || dia >= 120 {
			crisis = true
			c.addCritical(35, fmt.Sprintf("hypertensive crisis (BP %d/%d)", sys, dia),
				"Immediate physician evaluation for hypertensive crisis")
		} else {
			c.add(25, float64(sys-130), 0.7, fmt.Sprintf("elevated systolic blood pressure (%d mmHg)", sys))
			c.add(15, float64(dia-85), 0.8, fmt.Sprintf("elevated diastolic blood pressure (%d mmHg)", dia))
		}
		if sys < 90 {
			c.addCritical(25, fmt.Sprintf("hypotension (systolic %d mmHg)", sys),
				"Assess perfusion; consider fluid resuscitation")
		}
	}

	if hr := snap.Vitals.HeartRate; hr != nil {
		c.inputs++
		c.certain = true
		c.add(25, float64(*hr-100), 0.6, fmt.Sprintf("tachycardia (HR %d)", *hr))
		if *hr < 50 {
			c.add(20, float64(50-*hr), 1.0, fmt.Sprintf("bradycardia (HR %d)", *hr))
		}
	}

	if snap.Age > 0 {
		c.inputs++
		c.add(12, float64(snap.Age-60), 0.4, fmt.Sprintf("age %d", snap.Age))
	}

	if hasTerm(snap.History, "heart disease", "cardiac", "heart failure") {
		c.inputs++
		c.certain = true
		c.addFixed(18, "history of heart disease")
	}
	if hasTerm(snap.History, "stroke") {
		c.inputs++
		c.addFixed(12, "history of stroke")
	}
	if hasTerm(snap.History, "hypertension") {
		c.inputs++
		c.certain = true
		c.addFixed(10, "history of hypertension")
	}
	if hasTerm(snap.History, "diabetes") {
		c.inputs++
		c.certain = true
		c.addFixed(8, "history of diabetes")
	}
	if hasTerm(snap.Symptoms, "chest pain") {
		c.inputs++
		// Chest pain during a hypertensive crisis is the model's top cardiac
		// alert and must land in the Critical band on its own.
		if crisis {
			c.addCritical(30, "chest pain during hypertensive crisis",
				"Immediate evaluation for acute coronary syndrome")
		} else {
			c.addCritical(20, "chest pain reported",
				"Evaluate for acute coronary syndrome")
		}
	}

	return c
}

func scoreRespiratory(snap PatientSnapshot) *acc {
	c := &acc{}

	if spo2 := snap.Vitals.SpO2; spo2 != nil {
		c.inputs++
		c.certain = true
		if *spo2 < 90 {
			c.addCritical(40, fmt.Sprintf("severe hypoxemia (SpO2 %d%%)", *spo2),
				"Supplemental oxygen and immediate assessment")
		} else {
			c.add(25, float64(95-*spo2), 4.0, fmt.Sprintf("low oxygen saturation (SpO2 %d%%)", *spo2))
		}
	}

	if rr := snap.Vitals.RespRate; rr != nil {
		c.inputs++
		c.certain = true
		c.add(20, float64(*rr-20), 2.0, fmt.Sprintf("tachypnea (RR %d)", *rr))
		if *rr < 10 {
			c.addCritical(20, fmt.Sprintf("bradypnea (RR %d)", *rr),
				"Assess airway and ventilation")
		}
	}

	if hasTerm(snap.Symptoms, "shortness of breath", "difficulty breathing") {
		c.inputs++
		c.addFixed(18, "respiratory distress symptoms")
	}
	if hasTerm(snap.Symptoms, "severe cough") {
		c.inputs++
		c.addFixed(10, "severe cough")
	}
	if hasTerm(snap.History, "copd") {
		c.inputs++
		c.certain = true
		c.addFixed(15, "history of COPD")
	}
	if hasTerm(snap.History, "asthma") {
		c.inputs++
		c.certain = true
		c.addFixed(10, "history of asthma")
	}
	if hasTerm(snap.History, "smoker", "smoking") {
		c.inputs++
		c.addFixed(8, "current smoker")
	}

	return c
}

func scoreInfection(snap PatientSnapshot) *acc {
	c := &acc{}

	if t := snap.Vitals.TempC; t != nil {
		c.inputs++
		c.certain = true
		c.add(25, (*t-38.0), 10.0, fmt.Sprintf("fever (%.1f C)", *t))
		if *t < 35.0 {
			c.addFixed(15, fmt.Sprintf("hypothermia (%.1f C)", *t))
		}
	}

	// Fever with hypoxemia points toward pneumonia or sepsis.
	if t, spo2 := snap.Vitals.TempC, snap.Vitals.SpO2; t != nil && spo2 != nil {
		if *t > 38.0 && *spo2 < 92 {
			c.addCritical(15, "fever with hypoxemia (possible pneumonia/sepsis)",
				"Evaluate for sepsis; consider blood cultures and lactate")
		}
	}

	for _, lab := range snap.Labs {
		name := strings.ToLower(lab.TestName)
		flag := strings.ToLower(lab.Flag)
		switch {
		case flag == "critical":
			c.inputs++
			c.certain = true
			c.addCritical(20, fmt.Sprintf("critical lab value: %s", lab.TestName),
				"Immediate physician review of critical lab result")
		case flag == "abnormal" && strings.Contains(name, "wbc"):
			c.inputs++
			c.certain = true
			c.addFixed(15, "abnormal white blood cell count")
		case flag == "abnormal" && strings.Contains(name, "lactate"):
			c.inputs++
			c.certain = true
			c.addFixed(20, "elevated lactate")
		case flag == "abnormal":
			c.inputs++
			c.addFixed(6, fmt.Sprintf("abnormal lab: %s", lab.TestName))
		}
	}

	if hasTerm(snap.History, "immunocompromised", "hiv") {
		c.inputs++
		c.certain = true
		c.addFixed(15, "immunocompromised state")
	}
	if hasTerm(snap.Symptoms, "productive cough") {
		c.inputs++
		c.addFixed(10, "productive cough")
	}
	if snap.Age >= 65 && hasTerm(snap.Symptoms, "confusion", "altered mental status") {
		c.inputs++
		c.addFixed(15, "new confusion in elderly patient")
	}

	return c
}

func scoreMedication(snap PatientSnapshot) *acc {
	c := &acc{}
	if len(snap.Medications) == 0 {
		return c
	}
	c.inputs = len(snap.Medications)
	c.certain = true

	meds := make([]string, len(snap.Medications))
	for i, m := range snap.Medications {
		meds[i] = strings.ToLower(m)
	}

	for _, risky := range HighRiskMedications {
		for _, m := range meds {
			if strings.Contains(m, risky) {
				c.addFixed(12, fmt.Sprintf("high-risk medication: %s", risky))
				break
			}
		}
	}

	for _, pair := range knownInteractions {
		if medsContain(meds, pair.a) && medsContain(meds, pair.b) {
			factor := fmt.Sprintf("drug interaction: %s + %s (%s)", pair.a, pair.b, pair.message)
			if pair.critical {
				c.addCritical(25, factor, "Contraindicated combination; review medications now")
			} else {
				c.addFixed(20, factor)
			}
		}
	}

	if len(meds) >= 5 {
		c.addFixed(10, fmt.Sprintf("polypharmacy (%d active medications)", len(meds)))
	}

	// Renally cleared drugs with impaired kidney function.
	if hasTerm(snap.History, "kidney disease", "renal") && medsContain(meds, "metformin", "digoxin", "lithium") {
		c.addFixed(15, "renally cleared medication with kidney disease")
	}

	return c
}

func medsContain(meds []string, names ...string) bool {
	for _, m := range meds {
		for _, n := range names {
			if strings.Contains(m, n) {
				return true
			}
		}
	}
	return false
}
