package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"medilens.app/analysis-server/internal/prompt"
	"medilens.app/analysis-server/internal/report"
)

// Phase labels are progress feedback only; they never affect control flow.
type Phase string

const (
	PhaseUploading  Phase = "uploading"
	PhaseAnalyzing  Phase = "analyzing"
	PhaseFinalizing Phase = "finalizing"
)

type ProgressFunc func(Phase)

// AnalysisInput is one uploaded document plus its analysis parameters.
type AnalysisInput struct {
	FileName    string
	MIMEType    string
	Data        []byte
	Kind        report.Kind
	SubjectName string
}

// AnalysisService runs the end-to-end transformation from an uploaded file
// to a complete AnalysisRecord. It does not persist; that is the caller's
// job, so a store reader never observes a partial record.
type AnalysisService struct {
	model            ModelClient
	rules            *prompt.Ruleset
	heatmapThreshold report.RiskLevel
	artifacts        ArtifactStore // optional, may be nil
	now              func() time.Time
}

func NewAnalysisService(model ModelClient, rules *prompt.Ruleset, heatmapThreshold report.RiskLevel, artifacts ArtifactStore) *AnalysisService {
	if rules == nil {
		rules = prompt.DefaultRuleset()
	}
	if !heatmapThreshold.Valid() {
		heatmapThreshold = report.RiskHigh
	}
	return &AnalysisService{
		model:            model,
		rules:            rules,
		heatmapThreshold: heatmapThreshold,
		artifacts:        artifacts,
		now:              time.Now,
	}
}

// HeatmapThreshold reports the risk level at or above which scan records
// carry an overlay.
func (s *AnalysisService) HeatmapThreshold() report.RiskLevel {
	return s.heatmapThreshold
}

// Analyze encodes the upload, selects a prompt, invokes the model, and
// assembles the record. Model failures are absorbed into a degraded record;
// encoding failures are the only error returned to the caller.
func (s *AnalysisService) Analyze(ctx context.Context, in AnalysisInput, progress ProgressFunc) (*report.AnalysisRecord, error) {
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("invalid analysis kind %q", in.Kind)
	}
	emit := func(p Phase) {
		if progress != nil {
			progress(p)
		}
	}

	emit(PhaseUploading)
	dataURL, err := EncodeDataURL(in.MIMEType, in.Data)
	if err != nil {
		return nil, err
	}
	payload, err := DecodeDataURL(dataURL)
	if err != nil {
		return nil, err
	}

	subject := report.Subject{
		Name:        strings.TrimSpace(in.SubjectName),
		PatientID:   "PT-" + strings.ToUpper(uuid.NewString()[:8]),
		DateOfBirth: "1990-01-01", // stub identity boundary; no real identity system exists
	}
	if subject.Name == "" {
		subject.Name = "Unknown Patient"
	}

	selection := s.rules.Select(in.Kind, in.FileName)

	emit(PhaseAnalyzing)
	result, err := s.invokeModel(ctx, selection, payload, in.Kind)
	if err != nil {
		log.Printf("Analysis degraded for %s (%s): %v", in.FileName, in.Kind, err)
		result = fallbackResult(in.Kind)
	}

	emit(PhaseFinalizing)
	rec := &report.AnalysisRecord{
		ID:             uuid.NewString(),
		CreatedAt:      s.now().UTC(),
		Kind:           in.Kind,
		Status:         result.status,
		SourceFile:     report.SourceFile{Name: in.FileName, MIMEType: in.MIMEType, DataURL: dataURL},
		Subject:        subject,
		RiskLevel:      result.riskLevel,
		SafetyScore:    result.safetyScore,
		Medications:    result.medications,
		Findings:       result.findings,
		Summary:        result.summary,
		PatientSummary: result.patientSummary,
	}

	if rec.Kind == report.KindScan && rec.RiskLevel.AtLeast(s.heatmapThreshold) {
		pngBytes, err := renderHeatmap(rec.ID)
		if err != nil {
			// A missing overlay would break the record invariant, and an
			// in-memory PNG encode only fails when the process is already
			// in trouble. Treat it like a model failure: degrade.
			log.Printf("Heatmap generation failed for %s: %v", rec.ID, err)
			fb := fallbackResult(report.KindScan)
			rec.Status = fb.status
			rec.RiskLevel = fb.riskLevel
			rec.SafetyScore = fb.safetyScore
			rec.Findings = fb.findings
			rec.Summary = fb.summary
			rec.PatientSummary = fb.patientSummary
		} else {
			rec.HeatmapOverlay = heatmapDataURL(pngBytes)
			if s.artifacts != nil {
				url, err := s.artifacts.UploadPNG(ctx, "heatmaps/"+rec.ID+".png", pngBytes)
				if err != nil {
					log.Printf("Heatmap upload failed for %s: %v", rec.ID, err)
				} else {
					rec.HeatmapURL = url
				}
			}
		}
	}

	if err := rec.Validate(s.heatmapThreshold); err != nil {
		return nil, fmt.Errorf("assembled record failed validation: %w", err)
	}
	return rec, nil
}

// modelResult is the validated, normalized payload of one model reply.
type modelResult struct {
	status         report.Status
	riskLevel      report.RiskLevel
	safetyScore    int
	medications    []report.Medication
	findings       []report.Finding
	summary        string
	patientSummary string
}

type modelPayload struct {
	RiskLevel      report.RiskLevel    `json:"risk_level"`
	SafetyScore    int                 `json:"safety_score"`
	Medications    []report.Medication `json:"medications"`
	Findings       []report.Finding    `json:"findings"`
	Summary        string              `json:"summary"`
	PatientSummary string              `json:"patient_summary"`
}

func (s *AnalysisService) invokeModel(ctx context.Context, sel prompt.Selection, image ImagePayload, kind report.Kind) (modelResult, error) {
	raw, err := s.model.GenerateStructured(ctx, sel.Instruction, sel.Schema, image)
	if err != nil {
		return modelResult{}, err
	}

	var payload modelPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return modelResult{}, fmt.Errorf("%w: reply is not valid JSON: %v", ErrModelInvocation, err)
	}
	if err := validatePayload(&payload, kind); err != nil {
		return modelResult{}, fmt.Errorf("%w: %v", ErrModelInvocation, err)
	}

	result := modelResult{
		status:         report.StatusCompleted,
		riskLevel:      payload.RiskLevel,
		safetyScore:    payload.SafetyScore,
		summary:        payload.Summary,
		patientSummary: payload.PatientSummary,
	}
	if kind == report.KindPrescription {
		result.medications = payload.Medications
	} else {
		result.findings = payload.Findings
	}
	return result, nil
}

// validatePayload enforces the schema the model was asked to conform to:
// enumerated fields, required fields, integer ranges.
func validatePayload(p *modelPayload, kind report.Kind) error {
	if !p.RiskLevel.Valid() {
		return fmt.Errorf("invalid risk_level %q", p.RiskLevel)
	}
	if p.SafetyScore < 0 || p.SafetyScore > 100 {
		return fmt.Errorf("safety_score %d out of range", p.SafetyScore)
	}
	if p.Summary == "" || p.PatientSummary == "" {
		return fmt.Errorf("missing summary fields")
	}
	switch kind {
	case report.KindPrescription:
		if len(p.Medications) == 0 {
			return fmt.Errorf("prescription reply has no medications")
		}
		for i, m := range p.Medications {
			if m.Name == "" {
				return fmt.Errorf("medication %d has no name", i)
			}
			if !m.Status.Valid() {
				return fmt.Errorf("medication %d has invalid status %q", i, m.Status)
			}
		}
	case report.KindScan:
		if len(p.Findings) == 0 {
			return fmt.Errorf("scan reply has no findings")
		}
		for i, f := range p.Findings {
			if f.Description == "" {
				return fmt.Errorf("finding %d has no description", i)
			}
			if !f.Severity.Valid() {
				return fmt.Errorf("finding %d has invalid severity %q", i, f.Severity)
			}
		}
	}
	return nil
}

const (
	fallbackSummary = "Automated analysis could not be completed for this document. " +
		"The result below is a placeholder; have the document reviewed manually."
	fallbackPatientSummary = "We couldn't analyze this document automatically. " +
		"Please share it with your doctor or pharmacist for a manual review."
)

// fallbackResult is the fixed degraded record body substituted when the
// model call or its validation fails. It is always a complete, valid result.
func fallbackResult(kind report.Kind) modelResult {
	result := modelResult{
		status:         report.StatusDegraded,
		riskLevel:      report.RiskMedium,
		safetyScore:    50,
		summary:        fallbackSummary,
		patientSummary: fallbackPatientSummary,
	}
	if kind == report.KindPrescription {
		result.medications = []report.Medication{{
			Name:          "Analysis failed",
			Dosage:        "n/a",
			Status:        report.MedicationInteractionWarning,
			PatientNote:   "This prescription could not be analyzed automatically.",
			TechnicalNote: "Model invocation failed; manual review required.",
		}}
	} else {
		result.findings = []report.Finding{{
			Description: "Analysis failed; the image could not be evaluated automatically.",
			Location:    "unknown",
			Severity:    report.SeverityModerate,
		}}
	}
	return result
}
