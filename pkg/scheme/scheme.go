// Package scheme classifies payment cards by network, from the selected
// AID first and from the PAN when the AID says nothing decisive.
package scheme

import (
	"bytes"
	"strconv"
	"strings"
)

// Scheme is a card network.
type Scheme int

const (
	Unknown Scheme = iota
	Visa
	Mastercard
	Maestro
	AmericanExpress
	CB
	Discover
	JCB
	UnionPay
	DinersClub
	Interac
	Girocard
	RuPay
	Mir
)

var names = [...]string{
	Unknown:         "UNKNOWN",
	Visa:            "VISA",
	Mastercard:      "MASTERCARD",
	Maestro:         "MAESTRO",
	AmericanExpress: "AMERICAN_EXPRESS",
	CB:              "CB",
	Discover:        "DISCOVER",
	JCB:             "JCB",
	UnionPay:        "UNIONPAY",
	DinersClub:      "DINERS_CLUB",
	Interac:         "INTERAC",
	Girocard:        "GIROCARD",
	RuPay:           "RUPAY",
	Mir:             "MIR",
}

func (s Scheme) String() string {
	if s < 0 || int(s) >= len(names) {
		return "UNKNOWN"
	}
	return names[s]
}

// Parse is the inverse of String, case-insensitive.
func Parse(name string) (Scheme, bool) {
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return Scheme(i), true
		}
	}
	return Unknown, false
}

// Domestic reports networks that are co-badged with an international one
// on the same card. Their AID does not tell which network issued the PAN.
func (s Scheme) Domestic() bool {
	return s == CB || s == Girocard
}

type aidPrefix struct {
	prefix []byte
	scheme Scheme
}

// Registered application identifiers, most specific first.
var aids = []aidPrefix{
	{[]byte{0xA0, 0x00, 0x00, 0x00, 0x04, 0x30, 0x60}, Maestro},
	{[]byte{0xA0, 0x00, 0x00, 0x00, 0x03}, Visa},
	{[]byte{0xA0, 0x00, 0x00, 0x00, 0x04}, Mastercard},
	{[]byte{0xA0, 0x00, 0x00, 0x00, 0x05}, Maestro},
	{[]byte{0xA0, 0x00, 0x00, 0x00, 0x25}, AmericanExpress},
	{[]byte{0xA0, 0x00, 0x00, 0x00, 0x42}, CB},
	{[]byte{0xA0, 0x00, 0x00, 0x00, 0x65}, JCB},
	{[]byte{0xA0, 0x00, 0x00, 0x01, 0x52}, Discover},
	{[]byte{0xA0, 0x00, 0x00, 0x02, 0x77}, Interac},
	{[]byte{0xA0, 0x00, 0x00, 0x03, 0x33}, UnionPay},
	{[]byte{0xA0, 0x00, 0x00, 0x03, 0x59}, Girocard},
	{[]byte{0xA0, 0x00, 0x00, 0x05, 0x24}, RuPay},
	{[]byte{0xA0, 0x00, 0x00, 0x06, 0x58}, Mir},
}

// ByAID matches aid against the registered application identifiers.
func ByAID(aid []byte) Scheme {
	for _, a := range aids {
		if bytes.HasPrefix(aid, a.prefix) {
			return a.scheme
		}
	}
	return Unknown
}

// panRange matches PANs whose first len(low) digits fall in [low, high].
type panRange struct {
	low, high string
	scheme    Scheme
}

var panRanges = []panRange{
	{"4", "4", Visa},
	{"51", "55", Mastercard},
	{"2221", "2720", Mastercard},
	{"50", "50", Maestro},
	{"56", "58", Maestro},
	{"6304", "6304", Maestro},
	{"6759", "6759", Maestro},
	{"6761", "6763", Maestro},
	{"34", "34", AmericanExpress},
	{"37", "37", AmericanExpress},
	{"6011", "6011", Discover},
	{"644", "649", Discover},
	{"65", "65", Discover},
	{"622126", "622925", Discover},
	{"3528", "3589", JCB},
	{"62", "62", UnionPay},
	{"300", "305", DinersClub},
	{"3095", "3095", DinersClub},
	{"36", "36", DinersClub},
	{"38", "39", DinersClub},
	{"2200", "2204", Mir},
	{"60", "60", RuPay},
	{"6521", "6522", RuPay},
}

// ByPAN returns the network of the longest matching PAN range.
func ByPAN(pan string) Scheme {
	best, bestLen := Unknown, 0
	for _, r := range panRanges {
		n := len(r.low)
		if n <= bestLen || len(pan) < n {
			continue
		}
		v, err := strconv.Atoi(pan[:n])
		if err != nil {
			continue
		}
		lo, _ := strconv.Atoi(r.low)
		hi, _ := strconv.Atoi(r.high)
		if v >= lo && v <= hi {
			best, bestLen = r.scheme, n
		}
	}
	return best
}

// Classify picks the network of a card. The AID wins unless it is unknown
// or belongs to a domestic network, in which case the PAN decides; a
// domestic network is kept when the PAN matches nothing.
func Classify(aid []byte, pan string) Scheme {
	byAID := ByAID(aid)
	if byAID != Unknown && !byAID.Domestic() {
		return byAID
	}
	if byPAN := ByPAN(pan); byPAN != Unknown {
		return byPAN
	}
	return byAID
}
