package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medilens.app/analysis-server/internal/prompt"
	"medilens.app/analysis-server/internal/report"
)

// fakeModel returns a canned reply (or error) and records what it was asked.
type fakeModel struct {
	reply          json.RawMessage
	err            error
	gotInstruction string
	gotImage       ImagePayload
}

func (f *fakeModel) GenerateStructured(_ context.Context, instruction string, _ *prompt.Schema, image ImagePayload) (json.RawMessage, error) {
	f.gotInstruction = instruction
	f.gotImage = image
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

// pngPixel is a minimal valid payload to run through the encoder.
var pngPixel = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}

func scanReply(risk string, score int) json.RawMessage {
	reply := map[string]any{
		"risk_level":   risk,
		"safety_score": score,
		"findings": []map[string]any{
			{"description": "Small opacity in the right lower lobe", "location": "right lower lobe", "severity": "moderate"},
		},
		"summary":         "Right lower lobe opacity, follow-up recommended.",
		"patient_summary": "We found a small spot on your lung that should be checked again.",
	}
	raw, _ := json.Marshal(reply)
	return raw
}

func prescriptionReply() json.RawMessage {
	reply := map[string]any{
		"risk_level":   "Low",
		"safety_score": 92,
		"medications": []map[string]any{
			{
				"name":           "Lisinopril",
				"dosage":         "10mg once daily",
				"status":         "verified",
				"patient_note":   "Take in the morning with water.",
				"technical_note": "Standard starting dose for hypertension.",
			},
		},
		"summary":         "Single-agent antihypertensive regimen, no interactions.",
		"patient_summary": "Your blood pressure medicine looks safe as prescribed.",
	}
	raw, _ := json.Marshal(reply)
	return raw
}

func scanInput(filename string) AnalysisInput {
	return AnalysisInput{
		FileName:    filename,
		MIMEType:    "image/png",
		Data:        pngPixel,
		Kind:        report.KindScan,
		SubjectName: "Jordan Reyes",
	}
}

func TestAnalyzeScanPopulatesFindingsOnly(t *testing.T) {
	model := &fakeModel{reply: scanReply("Low", 95)}
	svc := NewAnalysisService(model, nil, report.RiskHigh, nil)

	rec, err := svc.Analyze(context.Background(), scanInput("scan.png"), nil)
	require.NoError(t, err)

	assert.Equal(t, report.KindScan, rec.Kind)
	assert.Equal(t, report.StatusCompleted, rec.Status)
	assert.NotEmpty(t, rec.Findings)
	assert.Empty(t, rec.Medications)
	assert.Empty(t, rec.HeatmapOverlay) // Low risk, no overlay
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	require.NoError(t, rec.Validate(report.RiskHigh))
}

func TestAnalyzePrescriptionPopulatesMedicationsOnly(t *testing.T) {
	model := &fakeModel{reply: prescriptionReply()}
	svc := NewAnalysisService(model, nil, report.RiskHigh, nil)

	rec, err := svc.Analyze(context.Background(), AnalysisInput{
		FileName:    "rx_photo.jpg",
		MIMEType:    "image/jpeg",
		Data:        pngPixel,
		Kind:        report.KindPrescription,
		SubjectName: "Jordan Reyes",
	}, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.Medications)
	assert.Empty(t, rec.Findings)
	assert.Empty(t, rec.HeatmapOverlay)
	assert.Equal(t, "Lisinopril", rec.Medications[0].Name)
	require.NoError(t, rec.Validate(report.RiskHigh))
}

func TestAnalyzeHeatmapPresenceTracksRisk(t *testing.T) {
	tests := []struct {
		risk        string
		wantOverlay bool
	}{
		{"Low", false},
		{"Medium", false},
		{"High", true},
		{"Critical", true},
	}

	for _, tt := range tests {
		t.Run(tt.risk, func(t *testing.T) {
			model := &fakeModel{reply: scanReply(tt.risk, 40)}
			svc := NewAnalysisService(model, nil, report.RiskHigh, nil)

			rec, err := svc.Analyze(context.Background(), scanInput("chest_xray.png"), nil)
			require.NoError(t, err)

			if tt.wantOverlay {
				assert.True(t, len(rec.HeatmapOverlay) > 0, "expected overlay at risk %s", tt.risk)
				assert.Contains(t, rec.HeatmapOverlay, "data:image/png;base64,")
			} else {
				assert.Empty(t, rec.HeatmapOverlay)
			}
			require.NoError(t, rec.Validate(report.RiskHigh))
		})
	}
}

func TestAnalyzeModelFailureProducesDegradedRecord(t *testing.T) {
	model := &fakeModel{err: errors.New("connection reset")}
	svc := NewAnalysisService(model, nil, report.RiskHigh, nil)

	rec, err := svc.Analyze(context.Background(), scanInput("scan.png"), nil)
	require.NoError(t, err, "model failures must not surface to the caller")

	assert.Equal(t, report.StatusDegraded, rec.Status)
	assert.Equal(t, report.RiskMedium, rec.RiskLevel)
	assert.Equal(t, 50, rec.SafetyScore)
	require.Len(t, rec.Findings, 1)
	assert.Contains(t, rec.Findings[0].Description, "failed")
	assert.Equal(t, fallbackSummary, rec.Summary)
	assert.Equal(t, fallbackPatientSummary, rec.PatientSummary)
	assert.Empty(t, rec.HeatmapOverlay)
	require.NoError(t, rec.Validate(report.RiskHigh))
}

func TestAnalyzeInvalidReplyFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		reply json.RawMessage
	}{
		{"not json", json.RawMessage(`the scan looks fine`)},
		{"score out of range", scanReply("Low", 150)},
		{"bad risk level", scanReply("Catastrophic", 10)},
		{"empty findings", json.RawMessage(`{"risk_level":"Low","safety_score":90,"findings":[],"summary":"s","patient_summary":"p"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{reply: tt.reply}
			svc := NewAnalysisService(model, nil, report.RiskHigh, nil)

			rec, err := svc.Analyze(context.Background(), scanInput("scan.png"), nil)
			require.NoError(t, err)
			assert.Equal(t, report.StatusDegraded, rec.Status)
			assert.Equal(t, 50, rec.SafetyScore)
		})
	}
}

func TestAnalyzeEncodingFailureRejects(t *testing.T) {
	model := &fakeModel{reply: scanReply("Low", 90)}
	svc := NewAnalysisService(model, nil, report.RiskHigh, nil)

	_, err := svc.Analyze(context.Background(), AnalysisInput{
		FileName: "empty.png",
		MIMEType: "image/png",
		Data:     nil,
		Kind:     report.KindScan,
	}, nil)
	require.ErrorIs(t, err, ErrEncoding)

	_, err = svc.Analyze(context.Background(), AnalysisInput{
		FileName: "notes.txt",
		MIMEType: "text/plain",
		Data:     []byte("not an image"),
		Kind:     report.KindScan,
	}, nil)
	require.ErrorIs(t, err, ErrEncoding)
}

func TestAnalyzeSelectsPromptByFilename(t *testing.T) {
	model := &fakeModel{reply: scanReply("Low", 90)}
	svc := NewAnalysisService(model, nil, report.RiskHigh, nil)

	_, err := svc.Analyze(context.Background(), scanInput("chest_xray_01.png"), nil)
	require.NoError(t, err)
	assert.Contains(t, model.gotInstruction, "X-ray")

	_, err = svc.Analyze(context.Background(), scanInput("scan.png"), nil)
	require.NoError(t, err)
	assert.Contains(t, model.gotInstruction, "diagnostic medical image")
}

func TestAnalyzeSubmitsDecodedPayload(t *testing.T) {
	model := &fakeModel{reply: scanReply("Low", 90)}
	svc := NewAnalysisService(model, nil, report.RiskHigh, nil)

	rec, err := svc.Analyze(context.Background(), scanInput("scan.png"), nil)
	require.NoError(t, err)

	assert.Equal(t, "image/png", model.gotImage.MIMEType)
	assert.Equal(t, pngPixel, model.gotImage.Data)
	assert.Contains(t, rec.SourceFile.DataURL, "data:image/png;base64,")
	assert.Equal(t, "scan.png", rec.SourceFile.Name)
}

func TestAnalyzeEmitsProgressPhasesInOrder(t *testing.T) {
	model := &fakeModel{reply: scanReply("Low", 90)}
	svc := NewAnalysisService(model, nil, report.RiskHigh, nil)

	var phases []Phase
	_, err := svc.Analyze(context.Background(), scanInput("scan.png"), func(p Phase) {
		phases = append(phases, p)
	})
	require.NoError(t, err)
	assert.Equal(t, []Phase{PhaseUploading, PhaseAnalyzing, PhaseFinalizing}, phases)
}

func TestAnalyzeSubjectSnapshot(t *testing.T) {
	model := &fakeModel{reply: scanReply("Low", 90)}
	svc := NewAnalysisService(model, nil, report.RiskHigh, nil)

	rec, err := svc.Analyze(context.Background(), scanInput("scan.png"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Jordan Reyes", rec.Subject.Name)
	assert.Regexp(t, `^PT-[0-9A-F-]{8}$`, rec.Subject.PatientID)
	assert.Equal(t, "1990-01-01", rec.Subject.DateOfBirth)

	in := scanInput("scan.png")
	in.SubjectName = "  "
	rec, err = svc.Analyze(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, "Unknown Patient", rec.Subject.Name)
}

func TestAnalyzeRejectsInvalidKind(t *testing.T) {
	svc := NewAnalysisService(&fakeModel{}, nil, report.RiskHigh, nil)

	_, err := svc.Analyze(context.Background(), AnalysisInput{
		FileName: "scan.png", MIMEType: "image/png", Data: pngPixel, Kind: "biopsy",
	}, nil)
	require.Error(t, err)
}
