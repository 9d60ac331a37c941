package report

import (
	"fmt"
	"time"
)

// Kind selects which analysis branch a record went through.
type Kind string

const (
	KindPrescription Kind = "prescription"
	KindScan         Kind = "scan"
)

func (k Kind) Valid() bool {
	return k == KindPrescription || k == KindScan
}

// RiskLevel is an ordered severity classification.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

func (r RiskLevel) Valid() bool {
	_, ok := riskRank[r]
	return ok
}

// AtLeast reports whether r is as severe as other or more so.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank[r] >= riskRank[other]
}

// MedicationStatus is the verification outcome for one medication entry.
type MedicationStatus string

const (
	MedicationVerified           MedicationStatus = "verified"
	MedicationInteractionWarning MedicationStatus = "interaction_warning"
	MedicationIncorrectDosage    MedicationStatus = "incorrect_dosage"
)

func (s MedicationStatus) Valid() bool {
	switch s {
	case MedicationVerified, MedicationInteractionWarning, MedicationIncorrectDosage:
		return true
	}
	return false
}

// Severity grades a single scan finding.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

func (s Severity) Valid() bool {
	return s == SeverityMild || s == SeverityModerate || s == SeveritySevere
}

// Status distinguishes a genuine model result from the synthesized
// fallback produced when the model call fails. Both are complete,
// valid records; the tag exists so callers can tell them apart.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusDegraded  Status = "degraded"
)

type Medication struct {
	Name          string           `json:"name"`
	Dosage        string           `json:"dosage"`
	Status        MedicationStatus `json:"status"`
	PatientNote   string           `json:"patient_note"`
	TechnicalNote string           `json:"technical_note"`
}

type Finding struct {
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Severity    Severity `json:"severity"`
}

// Subject is a denormalized identity snapshot frozen at analysis time.
// It is not a foreign key; later changes to the user never rewrite it.
type Subject struct {
	Name        string `json:"name"`
	PatientID   string `json:"patient_id"`
	DateOfBirth string `json:"date_of_birth"`
}

type SourceFile struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	DataURL  string `json:"data_url"`
}

// AnalysisRecord is one completed analysis of one uploaded document.
// Records are immutable after creation; corrections require a new record.
type AnalysisRecord struct {
	ID          string     `json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	SourceFile  SourceFile `json:"source_file"`
	Subject     Subject    `json:"subject"`
	RiskLevel   RiskLevel  `json:"risk_level"`
	SafetyScore int        `json:"safety_score"`

	// Exactly one of Medications/Findings is populated, according to Kind.
	Medications []Medication `json:"medications,omitempty"`
	Findings    []Finding    `json:"findings,omitempty"`

	Summary        string `json:"summary"`
	PatientSummary string `json:"patient_summary"`

	// HeatmapOverlay is a generated PNG data URL, present only for scans
	// whose risk level reached the configured threshold. It is a disclosed
	// simulation of explainability, not a real saliency map.
	HeatmapOverlay string `json:"heatmap_overlay,omitempty"`
	// HeatmapURL points at the uploaded overlay object when an artifact
	// store is configured; empty otherwise.
	HeatmapURL string `json:"heatmap_url,omitempty"`
}

// Validate checks the structural invariants every stored record must hold.
// The heatmap check takes the risk threshold as a parameter since that
// threshold is configuration, not a property of the record itself.
func (r *AnalysisRecord) Validate(heatmapThreshold RiskLevel) error {
	if r.ID == "" {
		return fmt.Errorf("record has empty id")
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("record %s has zero created_at", r.ID)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("record %s has invalid kind %q", r.ID, r.Kind)
	}
	if !r.RiskLevel.Valid() {
		return fmt.Errorf("record %s has invalid risk level %q", r.ID, r.RiskLevel)
	}
	if r.SafetyScore < 0 || r.SafetyScore > 100 {
		return fmt.Errorf("record %s has safety score %d out of range", r.ID, r.SafetyScore)
	}

	switch r.Kind {
	case KindPrescription:
		if len(r.Medications) == 0 {
			return fmt.Errorf("prescription record %s has no medications", r.ID)
		}
		if len(r.Findings) != 0 {
			return fmt.Errorf("prescription record %s must not carry findings", r.ID)
		}
		if r.HeatmapOverlay != "" {
			return fmt.Errorf("prescription record %s must not carry a heatmap", r.ID)
		}
	case KindScan:
		if len(r.Findings) == 0 {
			return fmt.Errorf("scan record %s has no findings", r.ID)
		}
		if len(r.Medications) != 0 {
			return fmt.Errorf("scan record %s must not carry medications", r.ID)
		}
		wantHeatmap := r.RiskLevel.AtLeast(heatmapThreshold)
		if wantHeatmap && r.HeatmapOverlay == "" {
			return fmt.Errorf("scan record %s at risk %s is missing its heatmap", r.ID, r.RiskLevel)
		}
		if !wantHeatmap && r.HeatmapOverlay != "" {
			return fmt.Errorf("scan record %s at risk %s must not carry a heatmap", r.ID, r.RiskLevel)
		}
	}
	return nil
}
