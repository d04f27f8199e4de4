package codes

import (
	"fmt"

	"golang.org/x/text/currency"
)

// Currency is an ISO 4217 currency identified by its numeric code.
type Currency struct {
	Numeric int
	Alpha   string
	Name    string
}

// UnknownCurrency is returned for codes missing from the table.
var UnknownCurrency = Currency{Alpha: "XXX", Name: "Unknown"}

var currencies = map[int]Currency{
	36:  {36, "AUD", "Australian Dollar"},
	124: {124, "CAD", "Canadian Dollar"},
	156: {156, "CNY", "Yuan Renminbi"},
	203: {203, "CZK", "Czech Koruna"},
	208: {208, "DKK", "Danish Krone"},
	344: {344, "HKD", "Hong Kong Dollar"},
	348: {348, "HUF", "Forint"},
	356: {356, "INR", "Indian Rupee"},
	376: {376, "ILS", "New Israeli Sheqel"},
	392: {392, "JPY", "Yen"},
	410: {410, "KRW", "Won"},
	414: {414, "KWD", "Kuwaiti Dinar"},
	484: {484, "MXN", "Mexican Peso"},
	504: {504, "MAD", "Moroccan Dirham"},
	554: {554, "NZD", "New Zealand Dollar"},
	578: {578, "NOK", "Norwegian Krone"},
	634: {634, "QAR", "Qatari Rial"},
	643: {643, "RUB", "Russian Ruble"},
	682: {682, "SAR", "Saudi Riyal"},
	702: {702, "SGD", "Singapore Dollar"},
	710: {710, "ZAR", "Rand"},
	752: {752, "SEK", "Swedish Krona"},
	756: {756, "CHF", "Swiss Franc"},
	764: {764, "THB", "Baht"},
	784: {784, "AED", "UAE Dirham"},
	788: {788, "TND", "Tunisian Dinar"},
	826: {826, "GBP", "Pound Sterling"},
	840: {840, "USD", "US Dollar"},
	949: {949, "TRY", "Turkish Lira"},
	946: {946, "RON", "Romanian Leu"},
	953: {953, "XPF", "CFP Franc"},
	975: {975, "BGN", "Bulgarian Lev"},
	978: {978, "EUR", "Euro"},
	985: {985, "PLN", "Zloty"},
	986: {986, "BRL", "Brazilian Real"},
}

// CurrencyByNumeric looks up an ISO 4217 numeric code.
func CurrencyByNumeric(n int) Currency {
	if c, ok := currencies[n]; ok {
		return c
	}
	u := UnknownCurrency
	u.Numeric = n
	return u
}

// Known reports whether the currency was found in the table.
func (c Currency) Known() bool {
	return c.Alpha != UnknownCurrency.Alpha
}

// Digits returns the number of minor unit digits (2 for EUR, 0 for JPY).
func (c Currency) Digits() int {
	u, err := currency.ParseISO(c.Alpha)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(u)
	return scale
}

// Format renders an amount in minor units, e.g. "46.00 EUR".
func (c Currency) Format(minor int64) string {
	digits := c.Digits()
	if digits == 0 {
		return fmt.Sprintf("%d %s", minor, c.Alpha)
	}

	div := int64(1)
	for i := 0; i < digits; i++ {
		div *= 10
	}
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%0*d %s", sign, minor/div, digits, minor%div, c.Alpha)
}

func (c Currency) String() string {
	return c.Alpha
}
