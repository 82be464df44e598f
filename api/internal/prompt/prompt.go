package prompt

import (
	"strings"
	"unicode/utf8"

	"eye-report/api/internal/apperr"
	"eye-report/api/internal/modality"
)

// DefaultReferenceCap bounds the reference slice, in characters.
const DefaultReferenceCap = 4000

const noReferencePlaceholder = "(No reference document available.)"

const preamble = `You are an artificial intelligence system designed to assist qualified ophthalmologists
by generating structured ophthalmic imaging reports.`

const safetyRules = `REGULATORY & SAFETY RULES (NON-NEGOTIABLE):
- You are NOT a diagnostic system
- You do NOT provide medical diagnoses or treatment recommendations
- You provide clinical support only
- All language must be probability-based and non-definitive
- Use phrases such as:
  "findings are consistent with"
  "features are suggestive of"
  "correlation with clinical findings is advised"

STRICTLY PROHIBITED:
- "diagnosis confirmed"
- "this proves"
- "definitive diagnosis"
- Any treatment advice
- Teaching or explanatory language`

// Heading is one mandated report section with its fill-in hint.
type Heading struct {
	Title string
	Hint  string
}

// MandatedHeadings is the exact output structure the model is told to follow.
var MandatedHeadings = []Heading{
	{"PATIENT DETAILS", `Extract Name, ID, Age, DOB, and Date of Scan if visible. If not visible, state "Not visible in scan".`},
	{"SCAN QUALITY", "Assess signal strength and centration"},
	{"KEY FINDINGS", "List observations clearly"},
	{"PATTERN ANALYSIS", "Analyze specific patterns relevant to the modality"},
	{"CLINICAL IMPRESSION", "Probability-based summary"},
	{"DIFFERENTIAL CONSIDERATIONS", "List 2-3 possibilities"},
	{"LIMITATIONS / NOTES", "Standard limitations of AI analysis"},
}

// Assembler builds the instruction text sent with the image.
type Assembler struct {
	ReferenceCap int
}

func NewAssembler(referenceCap int) *Assembler {
	if referenceCap <= 0 {
		referenceCap = DefaultReferenceCap
	}
	return &Assembler{ReferenceCap: referenceCap}
}

// Assemble returns preamble, safety rules and headings, the modality focus list,
// then the reference slice. It has no side effects.
func (a *Assembler) Assemble(m modality.Modality, style modality.Style, reference string) (string, error) {
	spec, ok := m.Spec()
	if !ok {
		return "", apperr.Configuration("no focus instructions for modality "+string(m), nil)
	}
	if !style.Valid() {
		return "", apperr.Configuration("unknown report style "+string(style), nil)
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")
	b.WriteString(safetyRules)
	b.WriteString("\n\nMANDATORY OUTPUT STRUCTURE (EXACTLY AS BELOW):\n")
	for _, h := range MandatedHeadings {
		b.WriteString("\n**")
		b.WriteString(h.Title)
		b.WriteString(":**\n(")
		b.WriteString(h.Hint)
		b.WriteString(")\n")
	}

	b.WriteString("\nMODALITY: ")
	b.WriteString(spec.Name)
	b.WriteString("\nREPORT STYLE: ")
	b.WriteString(style.String())
	b.WriteString("\n\nINSTRUCTIONS:\n")
	b.WriteString(spec.Focus)

	b.WriteString("\n\nREFERENCE TERMINOLOGY (FOR LANGUAGE CONSISTENCY ONLY, NOT CLINICAL EVIDENCE):\n")
	if ref := Truncate(strings.TrimSpace(reference), a.refCap()); ref != "" {
		b.WriteString(ref)
	} else {
		b.WriteString(noReferencePlaceholder)
	}
	b.WriteString("\n")
	return b.String(), nil
}

func (a *Assembler) refCap() int {
	if a == nil || a.ReferenceCap <= 0 {
		return DefaultReferenceCap
	}
	return a.ReferenceCap
}

// Truncate cuts s to at most n characters without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// MissingHeadings lists mandated headings absent from a report.
func MissingHeadings(report string) []string {
	upper := strings.ToUpper(report)
	var missing []string
	for _, h := range MandatedHeadings {
		if !strings.Contains(upper, h.Title) {
			missing = append(missing, h.Title)
		}
	}
	return missing
}
