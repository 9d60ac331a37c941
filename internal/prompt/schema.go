package prompt

import (
	"medilens.app/analysis-server/internal/report"
)

// Schema is a provider-neutral structured-output description. The Gemini
// client converts it to a genai.Schema; the OpenAI client renders it as
// JSON text inside the system prompt.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeInteger = "integer"
)

func riskLevelSchema() *Schema {
	return &Schema{
		Type: TypeString,
		Enum: []string{
			string(report.RiskLow),
			string(report.RiskMedium),
			string(report.RiskHigh),
			string(report.RiskCritical),
		},
		Description: "Overall risk classification for the document",
	}
}

func safetyScoreSchema(meaning string) *Schema {
	return &Schema{
		Type:        TypeInteger,
		Description: "Integer between 0 and 100: " + meaning,
	}
}

// PrescriptionSchema constrains the model's reply for prescription analyses.
func PrescriptionSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"risk_level":   riskLevelSchema(),
			"safety_score": safetyScoreSchema("confidence the regimen is safe as prescribed"),
			"medications": {
				Type: TypeArray,
				Items: &Schema{
					Type: TypeObject,
					Properties: map[string]*Schema{
						"name":   {Type: TypeString},
						"dosage": {Type: TypeString},
						"status": {
							Type: TypeString,
							Enum: []string{
								string(report.MedicationVerified),
								string(report.MedicationInteractionWarning),
								string(report.MedicationIncorrectDosage),
							},
						},
						"patient_note":   {Type: TypeString, Description: "Plain-language guidance for the patient"},
						"technical_note": {Type: TypeString, Description: "Clinical note for the prescriber or pharmacist"},
					},
					Required: []string{"name", "dosage", "status", "patient_note", "technical_note"},
				},
			},
			"summary":         {Type: TypeString, Description: "Technical summary for a clinician"},
			"patient_summary": {Type: TypeString, Description: "Lay summary for the patient"},
		},
		Required: []string{"risk_level", "safety_score", "medications", "summary", "patient_summary"},
	}
}

// ScanSchema constrains the model's reply for every scan modality.
func ScanSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"risk_level":   riskLevelSchema(),
			"safety_score": safetyScoreSchema("confidence the scan is normal"),
			"findings": {
				Type: TypeArray,
				Items: &Schema{
					Type: TypeObject,
					Properties: map[string]*Schema{
						"description": {Type: TypeString},
						"location":    {Type: TypeString, Description: "Anatomical location of the finding"},
						"severity": {
							Type: TypeString,
							Enum: []string{
								string(report.SeverityMild),
								string(report.SeverityModerate),
								string(report.SeveritySevere),
							},
						},
					},
					Required: []string{"description", "location", "severity"},
				},
			},
			"summary":         {Type: TypeString, Description: "Technical summary for a clinician"},
			"patient_summary": {Type: TypeString, Description: "Lay summary for the patient"},
		},
		Required: []string{"risk_level", "safety_score", "findings", "summary", "patient_summary"},
	}
}
