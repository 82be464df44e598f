package report

const Disclaimer = "⚠️ AI Medical Disclaimer\n\n" +
	"This application uses artificial intelligence to assist in the interpretation of ophthalmic imaging.\n\n" +
	"The output is for educational and clinical support purposes only and does not constitute a medical " +
	"diagnosis, treatment recommendation, or clinical decision.\n\n" +
	"Final interpretation and patient management must be performed by a qualified ophthalmologist."

// ReportDisclaimer accompanies every generated report.
const ReportDisclaimer = "⚠️ AI-Generated Clinical Support Output\n" +
	"This report is generated by an artificial intelligence system and is intended to support clinical " +
	"assessment only. It does not replace professional medical judgment. Correlation with clinical findings is essential."

const Acknowledgment = "I understand that this is an AI-assisted clinical support tool and does not replace professional medical judgment."

const Footer = "Eye Diagnostics is an AI-assisted clinical support tool. " +
	"It does not provide medical diagnoses or treatment advice. " +
	"Use is subject to professional clinical judgment."
