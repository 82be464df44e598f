package modality

import (
	"fmt"
	"strings"
)

// Modality identifies an imaging modality. The set is closed: use the constants.
type Modality string

const (
	OCTMacula         Modality = "oct_macula"
	OCTONH            Modality = "oct_onh"
	VisualField       Modality = "visual_field"
	CornealTopography Modality = "corneal_topography"
	FFA               Modality = "ffa"
	OCTA              Modality = "octa"
	UltrasoundBScan   Modality = "ultrasound_bscan"
)

const DefaultModality = OCTMacula

// Spec is the immutable description attached to a modality.
type Spec struct {
	Name  string
	Focus string
}

var specs = map[Modality]Spec{
	OCTMacula: {
		Name: "OCT Macula",
		Focus: `Focus on:
- Retinal thickness profile
- Intraretinal fluid (IRF) / subretinal fluid (SRF)
- Integrity of ELM and ellipsoid zone
- RPE changes (drusen, PED, atrophy)`,
	},
	OCTONH: {
		Name: "OCT ONH (Glaucoma)",
		Focus: `Focus on:
- RNFL average and quadrant thickness
- ISNT rule assessment
- Optic disc morphology and cupping`,
	},
	VisualField: {
		Name: "Visual Field (Perimetry)",
		Focus: `Focus on:
- Reliability indices
- Mean deviation (MD), PSD, GHT
- Pattern: arcuate defect, nasal step, central island`,
	},
	CornealTopography: {
		Name: "Corneal Topography",
		Focus: `Focus on:
- Axial curvature pattern
- Anterior/posterior elevation
- Pachymetry and thinnest point`,
	},
	FFA: {
		Name: "Fluorescein Angiography (FFA)",
		Focus: `Focus on:
- Angiographic phase
- Leakage, pooling, staining, window defects
- Areas of non-perfusion`,
	},
	OCTA: {
		Name: "OCT Angiography (OCTA)",
		Focus: `Focus on:
- Superficial and deep capillary plexus
- FAZ morphology
- Neovascular networks`,
	},
	UltrasoundBScan: {
		Name: "Ultrasound B-Scan",
		Focus: `Focus on:
- Retinal vs vitreous detachment
- Mass reflectivity
- Dynamic movement`,
	},
}

// All lists the modalities in display order.
func All() []Modality {
	return []Modality{OCTMacula, OCTONH, VisualField, CornealTopography, FFA, OCTA, UltrasoundBScan}
}

// Spec returns the name and focus text, or false for a value outside the set.
func (m Modality) Spec() (Spec, bool) {
	s, ok := specs[m]
	return s, ok
}

func (m Modality) Valid() bool {
	_, ok := specs[m]
	return ok
}

func (m Modality) String() string {
	if s, ok := specs[m]; ok {
		return s.Name
	}
	return string(m)
}

// Parse accepts either the key ("oct_macula") or the display name ("OCT Macula"), case-insensitively.
func Parse(s string) (Modality, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return "", fmt.Errorf("modality is empty")
	}
	for _, m := range All() {
		if strings.EqualFold(v, string(m)) || strings.EqualFold(v, specs[m].Name) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown modality %q", s)
}

// Style is the requested report style. It is echoed into the prompt only.
type Style string

const (
	ConsultantClinical Style = "consultant"
	ExamOriented       Style = "exam"
)

const DefaultStyle = ConsultantClinical

var styleNames = map[Style]string{
	ConsultantClinical: "Consultant Clinical Report",
	ExamOriented:       "Exam-Oriented (FCPS / MRCOphth)",
}

func Styles() []Style { return []Style{ConsultantClinical, ExamOriented} }

func (s Style) Valid() bool {
	_, ok := styleNames[s]
	return ok
}

func (s Style) String() string {
	if n, ok := styleNames[s]; ok {
		return n
	}
	return string(s)
}

func ParseStyle(s string) (Style, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return "", fmt.Errorf("report style is empty")
	}
	for _, st := range Styles() {
		if strings.EqualFold(v, string(st)) || strings.EqualFold(v, styleNames[st]) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown report style %q", s)
}

// Source records how the image reached us.
type Source string

const (
	SourceUpload  Source = "upload"
	SourceCapture Source = "capture"
)

func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "upload", "file":
		return SourceUpload, nil
	case "capture", "camera":
		return SourceCapture, nil
	default:
		return "", fmt.Errorf("unknown input source %q", s)
	}
}
