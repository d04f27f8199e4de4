package emv

import (
	"fmt"
	"strings"
	"time"

	"github.com/gregLibert/emv-reader/pkg/codes"
	"github.com/gregLibert/emv-reader/pkg/scheme"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// ExpiryDate is the month a card expires. The zero value means unknown.
type ExpiryDate struct {
	Year  int
	Month time.Month
}

// IsZero reports whether no expiry was read.
func (e ExpiryDate) IsZero() bool {
	return e.Year == 0 && e.Month == 0
}

// String renders MM/YYYY.
func (e ExpiryDate) String() string {
	if e.IsZero() {
		return ""
	}
	return fmt.Sprintf("%02d/%04d", int(e.Month), e.Year)
}

// PaymentRecord is one entry of the card's transaction log.
type PaymentRecord struct {
	// Amount authorised, in minor units of Currency.
	Amount int64

	// Cryptogram is the cryptogram information data (9F27) in hex.
	Cryptogram      string
	TransactionType codes.TransactionType
	Currency        codes.Currency
	TerminalCountry codes.Country
	Date            time.Time
}

func (p PaymentRecord) String() string {
	date := "----------"
	if !p.Date.IsZero() {
		date = p.Date.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("%s %s %s in %s (CID %s)",
		date,
		p.TransactionType,
		p.Currency.Format(p.Amount),
		p.TerminalCountry,
		p.Cryptogram,
	)
}

// Card is what a read gathered from the selected payment application.
type Card struct {
	AID       []byte
	Scheme    scheme.Scheme
	PAN       string
	FirstName string
	LastName  string
	Expiry    ExpiryDate
	Label     string
	Payments  []PaymentRecord

	ApplicationPreferredName string
	LanguagePreference       string
	TransactionCounter       *int
	PinTryCounter            *int
}

// Describe renders the card for a terminal.
func (c *Card) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== EMV CARD ===")

	line := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "\n    - %s: %s", name, value)
		}
	}
	counter := func(name string, v *int) {
		if v != nil {
			line(name, fmt.Sprint(*v))
		}
	}

	line("AID", tlv.HexString(c.AID))
	line("Scheme", c.Scheme.String())
	line("Label", c.Label)
	line("Preferred Name", c.ApplicationPreferredName)
	line("PAN", c.PAN)
	line("Expiry", c.Expiry.String())
	line("Last Name", c.LastName)
	line("First Name", c.FirstName)
	line("Language", c.LanguagePreference)
	counter("Transaction Counter", c.TransactionCounter)
	counter("PIN Tries Left", c.PinTryCounter)

	if len(c.Payments) > 0 {
		fmt.Fprintf(&sb, "\n    - Payments (%d):", len(c.Payments))
		for _, p := range c.Payments {
			fmt.Fprintf(&sb, "\n        %s", p)
		}
	}

	return sb.String()
}
