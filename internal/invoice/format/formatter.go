// Package format renders human-readable invoice numbers from a template.
//
// Supported tokens: {YYYY} {YY} {MM} {DD} {SEQ} and {SEQn}, where n is the
// zero-padded width of the sequence.
package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DefaultNumberTemplate = "INV-{YYYY}{MM}-{SEQ6}"

var (
	seqTokenRe = regexp.MustCompile(`\{SEQ(\d*)\}`)

	dateTokens = []struct {
		token  string
		layout string
	}{
		{"{YYYY}", "2006"},
		{"{YY}", "06"},
		{"{MM}", "01"},
		{"{DD}", "02"},
	}
)

// ValidateTemplate rejects templates without a sequence token or with unknown tokens.
func ValidateTemplate(template string) error {
	if !seqTokenRe.MatchString(template) {
		return fmt.Errorf("invoice number template %q has no sequence token", template)
	}
	_, err := InvoiceNumber(template, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	return err
}

// InvoiceNumber substitutes the date of issuedAt (UTC) and seq into template.
func InvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	issuedAt = issuedAt.UTC()
	out := template
	for _, t := range dateTokens {
		out = strings.ReplaceAll(out, t.token, issuedAt.Format(t.layout))
	}

	out = seqTokenRe.ReplaceAllStringFunc(out, func(m string) string {
		width := seqTokenRe.FindStringSubmatch(m)[1]
		if width == "" {
			return strconv.FormatInt(seq, 10)
		}
		n, err := strconv.Atoi(width)
		if err != nil || n <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", n, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice number: %s", out)
	}
	return out, nil
}
