package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validScan() *AnalysisRecord {
	return &AnalysisRecord{
		ID:          "rec-1",
		CreatedAt:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		Kind:        KindScan,
		Status:      StatusCompleted,
		RiskLevel:   RiskLow,
		SafetyScore: 90,
		Findings:    []Finding{{Description: "clear", Location: "chest", Severity: SeverityMild}},
	}
}

func TestRiskLevelOrdering(t *testing.T) {
	assert.True(t, RiskCritical.AtLeast(RiskHigh))
	assert.True(t, RiskHigh.AtLeast(RiskHigh))
	assert.False(t, RiskMedium.AtLeast(RiskHigh))
	assert.False(t, RiskLow.AtLeast(RiskMedium))
}

func TestValidateAcceptsCompleteRecords(t *testing.T) {
	require.NoError(t, validScan().Validate(RiskHigh))

	rx := validScan()
	rx.Kind = KindPrescription
	rx.Findings = nil
	rx.Medications = []Medication{{Name: "Lisinopril", Status: MedicationVerified}}
	require.NoError(t, rx.Validate(RiskHigh))
}

func TestValidateRejectsKindFieldMismatch(t *testing.T) {
	rec := validScan()
	rec.Medications = []Medication{{Name: "Lisinopril", Status: MedicationVerified}}
	assert.Error(t, rec.Validate(RiskHigh), "scan must not carry medications")

	rec = validScan()
	rec.Findings = nil
	assert.Error(t, rec.Validate(RiskHigh), "scan must carry findings")
}

func TestValidateHeatmapInvariant(t *testing.T) {
	// High-risk scan without an overlay is invalid.
	rec := validScan()
	rec.RiskLevel = RiskHigh
	assert.Error(t, rec.Validate(RiskHigh))

	rec.HeatmapOverlay = "data:image/png;base64,AAAA"
	assert.NoError(t, rec.Validate(RiskHigh))

	// Low-risk scan with an overlay is invalid.
	rec = validScan()
	rec.HeatmapOverlay = "data:image/png;base64,AAAA"
	assert.Error(t, rec.Validate(RiskHigh))
}

func TestValidateScoreRange(t *testing.T) {
	for _, score := range []int{-1, 101} {
		rec := validScan()
		rec.SafetyScore = score
		assert.Error(t, rec.Validate(RiskHigh), "score %d", score)
	}
	for _, score := range []int{0, 50, 100} {
		rec := validScan()
		rec.SafetyScore = score
		assert.NoError(t, rec.Validate(RiskHigh), "score %d", score)
	}
}
