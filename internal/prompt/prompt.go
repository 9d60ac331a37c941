package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"medilens.app/analysis-server/internal/report"
)

const prescriptionInstruction = "You are a clinical pharmacist reviewing a photographed prescription. " +
	"Read every medication on the prescription. For each one, verify the drug name, check the dosage " +
	"against standard adult dosing, and flag interactions between the listed medications. " +
	"Classify the overall regimen risk and score how confident you are that the regimen is safe as written. " +
	"Write the summary for a prescriber and the patient summary in plain language a layperson can act on. " +
	"Reply only with JSON matching the requested schema."

const genericScanInstruction = "You are a radiologist reviewing a diagnostic medical image. " +
	"Describe every abnormal or notable finding with its anatomical location and severity. " +
	"Classify the overall risk and score how confident you are that the image is normal. " +
	"Write the summary for a referring clinician and the patient summary in plain language. " +
	"Reply only with JSON matching the requested schema."

const xrayInstruction = "You are a radiologist reviewing an X-ray image. " +
	"Look for fractures, dislocations, opacities, effusions, cardiomegaly, and foreign bodies. " +
	"Describe each finding with its anatomical location and severity. " +
	"Classify the overall risk and score how confident you are that the X-ray is normal. " +
	"Write the summary for a referring clinician and the patient summary in plain language. " +
	"Reply only with JSON matching the requested schema."

const ecgInstruction = "You are a cardiologist reviewing an ECG trace. " +
	"Assess rhythm, rate, axis, intervals, and ST/T-wave morphology; look for arrhythmias, " +
	"conduction blocks, and ischemic changes. Describe each finding with its location on the trace " +
	"and severity. Classify the overall risk and score how confident you are that the ECG is normal. " +
	"Write the summary for a referring clinician and the patient summary in plain language. " +
	"Reply only with JSON matching the requested schema."

const mriInstruction = "You are a radiologist reviewing an MRI study. " +
	"Look for mass lesions, edema, hemorrhage, demyelination, disc pathology, and signal abnormalities. " +
	"Describe each finding with its anatomical location and severity. " +
	"Classify the overall risk and score how confident you are that the study is normal. " +
	"Write the summary for a referring clinician and the patient summary in plain language. " +
	"Reply only with JSON matching the requested schema."

// Selection is what the pipeline hands to the model client: the task
// instruction plus the schema the reply must conform to.
type Selection struct {
	Instruction string
	Schema      *Schema
}

// Rule maps filename keywords to a modality-specific instruction. Matching
// is a case-insensitive substring test over the uploaded filename; the
// filename is the only signal, so a mislabeled file gets the wrong modality
// prompt. That is an accepted heuristic limit of the design.
type Rule struct {
	Modality    string   `yaml:"modality"`
	Keywords    []string `yaml:"keywords"`
	Instruction string   `yaml:"instruction"`
}

// Ruleset holds the ordered scan rules; first match wins.
type Ruleset struct {
	rules []Rule
}

// DefaultRuleset returns the compiled-in modality table.
func DefaultRuleset() *Ruleset {
	return &Ruleset{rules: []Rule{
		{Modality: "xray", Keywords: []string{"xray", "x-ray", "x_ray"}, Instruction: xrayInstruction},
		{Modality: "ecg", Keywords: []string{"ecg", "ekg"}, Instruction: ecgInstruction},
		{Modality: "mri", Keywords: []string{"mri"}, Instruction: mriInstruction},
	}}
}

// LoadRuleset reads an ordered rule table from a YAML file. Rules with an
// empty instruction fall back to the generic scan instruction.
func LoadRuleset(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt rules %s: %w", path, err)
	}
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse prompt rules %s: %w", path, err)
	}
	for i := range rules {
		if len(rules[i].Keywords) == 0 {
			return nil, fmt.Errorf("prompt rule %d (%s) has no keywords", i, rules[i].Modality)
		}
		if rules[i].Instruction == "" {
			rules[i].Instruction = genericScanInstruction
		}
	}
	return &Ruleset{rules: rules}, nil
}

// Select is a pure function of kind and filename. Prescriptions always get
// the single prescription instruction; scans get the first matching modality
// rule or the generic imaging instruction.
func (rs *Ruleset) Select(kind report.Kind, filename string) Selection {
	if kind == report.KindPrescription {
		return Selection{Instruction: prescriptionInstruction, Schema: PrescriptionSchema()}
	}

	name := strings.ToLower(filename)
	for _, rule := range rs.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(name, kw) {
				return Selection{Instruction: rule.Instruction, Schema: ScanSchema()}
			}
		}
	}
	return Selection{Instruction: genericScanInstruction, Schema: ScanSchema()}
}

// Modality reports which rule would fire for a scan filename, or "generic".
// Exposed so the matching policy is testable independently of the pipeline.
func (rs *Ruleset) Modality(filename string) string {
	name := strings.ToLower(filename)
	for _, rule := range rs.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(name, kw) {
				return rule.Modality
			}
		}
	}
	return "generic"
}
