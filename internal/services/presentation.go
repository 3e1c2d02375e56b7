package services

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// DescriptionSanitizer strips unsafe markup from merchant-authored product descriptions.
type DescriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer builds the policy used for product descriptions.
func NewDescriptionSanitizer() *DescriptionSanitizer {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("loading").OnElements("img")
	policy.AllowAttrs("class").OnElements("p", "span", "ul", "li")
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	return &DescriptionSanitizer{policy: policy}
}

// Sanitize returns safe HTML for the description. Plain text is escaped and
// split into paragraphs when no HTML body exists.
func (s *DescriptionSanitizer) Sanitize(body, plain string) string {
	if strings.TrimSpace(body) != "" {
		if s == nil || s.policy == nil {
			return html.EscapeString(body)
		}
		return strings.TrimSpace(s.policy.Sanitize(body))
	}
	plain = strings.TrimSpace(plain)
	if plain == "" {
		return ""
	}
	var b strings.Builder
	for _, paragraph := range strings.Split(plain, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(paragraph), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

// PriceFormatter renders minor-unit amounts for the storefront locale.
type PriceFormatter struct {
	printer         *message.Printer
	defaultCurrency string
}

// NewPriceFormatter builds a formatter for locale, using defaultCurrency for
// amounts that carry no currency code.
func NewPriceFormatter(locale, defaultCurrency string) (*PriceFormatter, error) {
	tag := language.English
	if locale = strings.TrimSpace(locale); locale != "" {
		parsed, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("price formatter: invalid locale %q: %w", locale, err)
		}
		tag = parsed
	}
	code := strings.ToUpper(strings.TrimSpace(defaultCurrency))
	if code != "" {
		if _, err := currency.ParseISO(code); err != nil {
			return nil, fmt.Errorf("price formatter: invalid currency %q: %w", code, err)
		}
	}
	return &PriceFormatter{printer: message.NewPrinter(tag), defaultCurrency: code}, nil
}

// Format renders one amount, e.g. "¥ 1,200" or "$ 19.99".
func (f *PriceFormatter) Format(m domain.Money) string {
	code := strings.ToUpper(strings.TrimSpace(m.Currency))
	if code == "" && f != nil {
		code = f.defaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil || f == nil {
		return strings.TrimSpace(fmt.Sprintf("%d %s", m.Amount, code))
	}
	scale, _ := currency.Standard.Rounding(unit)
	value := float64(m.Amount) / math.Pow10(scale)
	return f.printer.Sprint(currency.Symbol(unit.Amount(value)))
}

// FormatRange renders a single price when both ends match, otherwise "min - max".
func (f *PriceFormatter) FormatRange(r domain.PriceRange) string {
	if r.Min.Amount == r.Max.Amount {
		return f.Format(r.Min)
	}
	return f.Format(r.Min) + " - " + f.Format(r.Max)
}
