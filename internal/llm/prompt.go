package llm

import (
	"strings"

	"github.com/joseph-ayodele/po-extractor/constants"
	"github.com/joseph-ayodele/po-extractor/internal/profiles"
)

// MaxPromptText caps the document text sent in the extract pass.
const MaxPromptText = 12000

// BuildExtractPrompt asks for the customer's fields exactly as they appear.
func BuildExtractPrompt(p *profiles.Profile, text string) string {
	var b strings.Builder
	b.WriteString("You are an expert at reading purchase orders. From the text below, extract only the exact content from the document without paraphrasing or summarizing.\n\n")
	b.WriteString("Return the following details exactly as they appear in the text, as a JSON object with these keys:\n")
	writeKeys(&b, p.ExtractFields)

	if len(p.ExtractInstructions) > 0 {
		b.WriteString("\nInstructions:\n")
		for _, line := range p.ExtractInstructions {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nDo not modify or summarize the content. Only retrieve exact text from the document.\n")
	b.WriteString("\nHere is the relevant purchase order text:\n\n")

	text = strings.TrimSpace(text)
	if len(text) > MaxPromptText {
		b.WriteString(text[:MaxPromptText])
		b.WriteString("\n...(truncated)")
	} else {
		b.WriteString(text)
	}
	return b.String()
}

// BuildRefinePrompt asks the model to map first-pass output onto the canonical keys.
func BuildRefinePrompt(p *profiles.Profile, extracted string) string {
	var b strings.Builder
	b.WriteString("You are an expert at processing purchase orders. Refine the following extracted information to match the specified format.\n\n")
	b.WriteString("Original extracted information:\n")
	b.WriteString(strings.TrimSpace(extracted))
	b.WriteString("\n\nInstructions:\n")
	for _, line := range p.RefineInstructions {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("- If the order has several lines, return them in an \"Order Lines\" array and keep shared header values at the top level.\n")
	b.WriteString("\nReturn ONLY the refined information as a JSON object with these keys. Do NOT add any extra explanations, titles, or text.\n")
	writeKeys(&b, constants.RequiredFields)
	return b.String()
}

func writeKeys(b *strings.Builder, keys []string) {
	for _, k := range keys {
		b.WriteString("  \"")
		b.WriteString(k)
		b.WriteString("\"\n")
	}
}
