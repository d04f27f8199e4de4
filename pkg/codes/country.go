package codes

import (
	"fmt"

	"golang.org/x/text/language"
)

// Country is an ISO 3166-1 country read from its numeric code.
type Country struct {
	Numeric int
	Region  language.Region
	known   bool
}

// CountryByNumeric resolves an ISO 3166-1 numeric code. The numeric codes
// coincide with the UN M.49 codes that language.ParseRegion understands.
func CountryByNumeric(n int) Country {
	c := Country{Numeric: n}
	if n <= 0 || n > 999 {
		return c
	}
	r, err := language.ParseRegion(fmt.Sprintf("%03d", n))
	if err != nil || !r.IsCountry() {
		return c
	}
	c.Region, c.known = r, true
	return c
}

// Known reports whether the code names a country.
func (c Country) Known() bool {
	return c.known
}

// Alpha2 returns the two-letter code ("FR"), or "" when unknown.
func (c Country) Alpha2() string {
	if !c.known {
		return ""
	}
	return c.Region.String()
}

// Alpha3 returns the three-letter code ("FRA"), or "" when unknown.
func (c Country) Alpha3() string {
	if !c.known {
		return ""
	}
	return c.Region.ISO3()
}

func (c Country) String() string {
	if !c.known {
		return fmt.Sprintf("UNKNOWN (%03d)", c.Numeric)
	}
	return c.Alpha2()
}
