// Package format renders contact details and dates the way they appear in the newsletter.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/ttacon/libphonenumber"
)

const belgianCountryCode = 32

// Belgian area codes, two-digit zones first.
var areaNumbers = []string{
	"02", "03", "04", "09",
	"010", "011", "012", "013", "014", "015", "016", "019",
	"050", "051", "052", "053", "054", "055", "056", "057", "058", "059",
	"060", "061", "063", "064", "065", "067", "069",
	"071",
	"080", "081", "082", "083", "085", "086", "087", "089",
}

var dutchMonths = [...]string{
	"januari", "februari", "maart", "april", "mei", "juni",
	"juli", "augustus", "september", "oktober", "november", "december",
}

// Email strips a mailto: scheme.
func Email(value string) string {
	return strings.TrimPrefix(value, "mailto:")
}

// Telephone renders a Belgian number as "(0)2 200 11 11" or "(0)475 12 34 56".
// Numbers outside a known Belgian zone are returned as given, without the tel: scheme.
func Telephone(value string) string {
	value = strings.TrimPrefix(value, "tel:")
	if value == "" {
		return ""
	}

	number := national(value)
	area := findArea(number)
	if area == "" {
		return value
	}

	groups := pairsFromEnd(number[len(area):])
	formatted := area
	if len(groups) > 0 {
		formatted += " " + strings.Join(groups, " ")
	}
	return "(0)" + formatted[1:]
}

// national converts international Belgian notation to the national digit string.
func national(value string) string {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '/', '-', '(', ')':
			return -1
		}
		return r
	}, value)

	if !strings.HasPrefix(compact, "+") && !strings.HasPrefix(compact, "00") {
		return compact
	}

	num, err := libphonenumber.Parse(compact, "BE")
	if err != nil || num.GetCountryCode() != belgianCountryCode {
		return compact
	}
	return "0" + libphonenumber.GetNationalSignificantNumber(num)
}

func findArea(number string) string {
	for _, area := range areaNumbers {
		if !strings.HasPrefix(number, area) {
			continue
		}
		// Zone 04 only has landlines starting with 2 or 3; anything else is a mobile prefix like 0475.
		if area == "04" && len(number) > 3 && number[2] != '2' && number[2] != '3' {
			return number[:4]
		}
		return area
	}
	return ""
}

// pairsFromEnd splits digits into pairs counted from the end; a leading odd digit joins the first pair.
func pairsFromEnd(digits string) []string {
	if digits == "" {
		return nil
	}
	var groups []string
	start := len(digits) % 2
	if start == 1 && len(digits) > 1 {
		start = 3
	}
	if start > 0 {
		groups = append(groups, digits[:start])
	}
	for i := start; i < len(digits); i += 2 {
		groups = append(groups, digits[i:i+2])
	}
	return groups
}

// DutchDate renders t as "2 september 2021" in loc.
func DutchDate(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("%d %s %d", t.Day(), dutchMonths[t.Month()-1], t.Year())
}
