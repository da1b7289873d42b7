// Package redact masks personal data before it reaches logs or audit details.
package redact

import (
	"regexp"
	"sort"
	"strings"
)

// Kind represents a category of personal data
type Kind string

const (
	KindEmail      Kind = "email"
	KindTaxCode    Kind = "tax_code"
	KindIBAN       Kind = "iban"
	KindCreditCard Kind = "credit_card"
	KindPhone      Kind = "phone"
)

// Detection is one match found in a text
type Detection struct {
	Kind     Kind
	Value    string
	StartPos int
	EndPos   int
}

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	// Italian codice fiscale, including omocodia substitutions
	taxCodePattern = regexp.MustCompile(`(?i)\b[A-Z]{6}[0-9LMNPQRSTUV]{2}[ABCDEHLMPRST][0-9LMNPQRSTUV]{2}[A-Z][0-9LMNPQRSTUV]{3}[A-Z]\b`)

	ibanPattern = regexp.MustCompile(`(?i)\b[A-Z]{2}[0-9]{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,4})?\b`)

	creditCardPattern = regexp.MustCompile(`\b(?:[0-9][ \-]?){12,18}[0-9]\b`)

	// Italian and international numbers with at least 8 digits
	phonePattern = regexp.MustCompile(`(?:\+|\b00)?[0-9][0-9 .\-/]{6,14}[0-9]\b`)

	datePattern = regexp.MustCompile(`^(?:[0-9]{4}-[0-9]{2}-[0-9]{2}|[0-9]{2}[/.\-][0-9]{2}[/.\-][0-9]{4})$`)
)

// Detect returns every match in text, earliest first. Overlapping matches keep
// the one found by the more specific pattern.
func Detect(text string) []Detection {
	var detections []Detection
	taken := func(start, end int) bool {
		for _, d := range detections {
			if start < d.EndPos && end > d.StartPos {
				return true
			}
		}
		return false
	}
	add := func(kind Kind, pattern *regexp.Regexp, accept func(string) bool) {
		for _, m := range pattern.FindAllStringIndex(text, -1) {
			value := text[m[0]:m[1]]
			if taken(m[0], m[1]) || (accept != nil && !accept(value)) {
				continue
			}
			detections = append(detections, Detection{Kind: kind, Value: value, StartPos: m[0], EndPos: m[1]})
		}
	}

	add(KindEmail, emailPattern, nil)
	add(KindTaxCode, taxCodePattern, nil)
	add(KindIBAN, ibanPattern, looksLikeIBAN)
	add(KindCreditCard, creditCardPattern, luhnCheck)
	add(KindPhone, phonePattern, looksLikePhone)

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].StartPos < detections[j].StartPos
	})
	return detections
}

// Contains reports whether text holds any personal data
func Contains(text string) bool {
	return len(Detect(text)) > 0
}

// Text replaces every detection with a placeholder naming its kind
func Text(text string) string {
	detections := Detect(text)
	if len(detections) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, d := range detections {
		b.WriteString(text[last:d.StartPos])
		b.WriteString(placeholder(d.Kind))
		last = d.EndPos
	}
	b.WriteString(text[last:])
	return b.String()
}

// Email keeps the first character of the local part and the domain,
// e.g. g***@example.com
func Email(address string) string {
	at := strings.LastIndex(address, "@")
	if at <= 0 {
		return "***"
	}
	return address[:1] + "***" + address[at:]
}

// Emails masks every address in the list
func Emails(addresses []string) []string {
	masked := make([]string, len(addresses))
	for i, a := range addresses {
		masked[i] = Email(a)
	}
	return masked
}

func placeholder(kind Kind) string {
	return "[" + strings.ToUpper(string(kind)) + "_REDACTED]"
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func looksLikePhone(s string) bool {
	if datePattern.MatchString(strings.TrimSpace(s)) {
		return false
	}
	n := len(digitsOnly(s))
	return n >= 8 && n <= 15
}

// looksLikeIBAN checks the ISO 13616 mod-97 checksum
func looksLikeIBAN(s string) bool {
	s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	if len(s) < 15 || len(s) > 34 {
		return false
	}
	rearranged := s[4:] + s[:4]

	remainder := 0
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			remainder = (remainder*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			remainder = (remainder*100 + int(r-'A'+10)) % 97
		default:
			return false
		}
	}
	return remainder == 1
}

// luhnCheck validates a card number
func luhnCheck(s string) bool {
	digits := digitsOnly(s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	second := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if second {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		second = !second
	}
	return sum%10 == 0
}
