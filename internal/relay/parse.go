package relay

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrNotQuotedLead is returned when a quoted message is not a lead summary.
	ErrNotQuotedLead = errors.New("quoted message is not a lead summary")
	// ErrMissingField is returned when a required summary field is absent.
	ErrMissingField = errors.New("required lead field missing")
	// ErrNoBudget is returned when a reply does not start with an amount.
	ErrNoBudget = errors.New("reply does not start with a budget amount")
)

// QuotedLead holds the fields of a lead summary quoted in the relay group.
type QuotedLead struct {
	ID               string
	Name             string
	Phone            string
	Address          string
	Excavation       string
	PoolDimensions   string // "WxH"
	ParcelDimensions string // square metres
	Coronation       string
	Interior         string
}

var (
	addressMarker = regexp.MustCompile(`(?i)direcci[oó]n\s*[*_]*\s*:`)

	idField         = labelField(`ID(?:\s+(?:del\s+)?proyecto)?`, `Proyecto`)
	nameField       = labelField(`Cliente`, `Nombre`)
	phoneField      = labelField(`Tel[eé]fono`)
	addressField    = labelField(`Direcci[oó]n`)
	excavationField = labelField(`Excavaci[oó]n`)
	coronationField = labelField(`Coronaci[oó]n`)
	interiorField   = labelField(`Interior`)

	poolField   = regexp.MustCompile(`(?im)^[\s*_•-]*Medidas(?:\s+de\s+la)?\s+piscina[*_]*\s*:[*_]*\s*(\d+(?:[.,]\d+)?)\s*[xX×]\s*(\d+(?:[.,]\d+)?)\s*(?:m|metros)?`)
	parcelField = regexp.MustCompile(`(?im)^[\s*_•-]*Parcela[*_]*\s*:[*_]*\s*(\d+(?:[.,]\d+)?)\s*m(?:²|2)`)

	budgetPrefix = regexp.MustCompile(`^\s*(\d{1,3}(?:[. \x{00A0}]\d{3})+|\d+)`)
)

// labelField matches "Label: value" at the start of a line, tolerating WhatsApp bold/italic markers and bullets.
func labelField(labels ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[\s*_•-]*(?:` + strings.Join(labels, "|") + `)[*_]*\s*:[*_]*[ \t]*(.+?)[ \t*_]*$`)
}

func find(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ParseQuotedLead extracts the lead summary fields from quoted. The text must
// contain the "Dirección:" label; id and address are required.
func ParseQuotedLead(quoted string) (QuotedLead, error) {
	if !addressMarker.MatchString(quoted) {
		return QuotedLead{}, ErrNotQuotedLead
	}
	lead := QuotedLead{
		ID:         find(idField, quoted),
		Name:       find(nameField, quoted),
		Phone:      find(phoneField, quoted),
		Address:    find(addressField, quoted),
		Excavation: find(excavationField, quoted),
		Coronation: find(coronationField, quoted),
		Interior:   find(interiorField, quoted),
	}
	if m := poolField.FindStringSubmatch(quoted); m != nil {
		lead.PoolDimensions = m[1] + "x" + m[2]
	}
	if m := parcelField.FindStringSubmatch(quoted); m != nil {
		lead.ParcelDimensions = m[1]
	}
	if lead.ID == "" {
		return lead, fmt.Errorf("%w: id", ErrMissingField)
	}
	if lead.Address == "" {
		return lead, fmt.Errorf("%w: address", ErrMissingField)
	}
	return lead, nil
}

// ParseBudget returns the amount at the start of body. Thousands separated by
// dots or spaces are accepted: "15.000 €" and "15000€ aprox" both yield 15000.
// A line break ends the amount.
func ParseBudget(body string) (int64, error) {
	m := budgetPrefix.FindStringSubmatch(body)
	if m == nil {
		return 0, ErrNoBudget
	}
	amount, err := strconv.ParseInt(digitsOnly(m[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoBudget, err)
	}
	return amount, nil
}

// digitsOnly strips every non-digit.
func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
