package provider

import (
	"regexp"
	"strings"
)

var (
	pixWithCode   = regexp.MustCompile(`(?i)PIX\s+(?:ENVIADO|RECEBIDO)\s*-\s*(?:Cp\s*:?\s*)?[\d\-]*-?\s*(.+)`)
	pixWithName   = regexp.MustCompile(`(?i)PIX\s+(?:ENVIADO|RECEBIDO)\s+(?:DE\s+|PARA\s+)?(.+)`)
	tedWithName   = regexp.MustCompile(`(?i)TED\s+[\d\s]+(.+)`)
	transfer      = regexp.MustCompile(`(?i)TRANSF(?:ERENCIA)?\s+(?:PIX\s+)?(?:DE\s+|PARA\s+)?(.+)`)
	cardPayment   = regexp.MustCompile(`(?i)PAG\*(.+)`)
	leadingCode   = regexp.MustCompile(`^[\d\s\-:]+`)
	trailingJunk  = regexp.MustCompile(`[\*\-\s]+$`)
	longNumbers   = regexp.MustCompile(`\d{6,}`)
	companySuffix = regexp.MustCompile(`(?i)\s+(LTDA|ME|EPP|EIRELI|S/A|SA)\.?$`)
)

// ExtractCounterpartyName pulls a payee or payer name out of common Brazilian
// statement descriptions (PIX, TED, transfers, PAG*). It returns "" when no
// pattern applies or the result is shorter than three characters.
func ExtractCounterpartyName(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return ""
	}

	patterns := []struct {
		re        *regexp.Regexp
		stripCode bool
	}{
		{pixWithCode, false},
		{pixWithName, true},
		{tedWithName, false},
		{transfer, true},
		{cardPayment, false},
	}

	name := ""
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(description)
		if len(m) < 2 {
			continue
		}
		candidate := m[1]
		if p.stripCode {
			candidate = leadingCode.ReplaceAllString(candidate, "")
		}
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			name = candidate
			break
		}
	}
	if name == "" {
		return ""
	}

	name = strings.TrimSpace(trailingJunk.ReplaceAllString(name, ""))
	name = strings.TrimSpace(longNumbers.ReplaceAllString(name, ""))
	name = strings.TrimSpace(companySuffix.ReplaceAllString(name, ""))
	if len([]rune(name)) < 3 {
		return ""
	}
	return name
}
