package emv

import (
	"fmt"
	"time"

	"github.com/gregLibert/emv-reader/pkg/bits"
	"github.com/gregLibert/emv-reader/pkg/codes"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// LogEntry locates the transaction log: file SFI and number of records.
type LogEntry struct {
	SFI     byte
	Records byte
}

func (l LogEntry) String() string {
	return fmt.Sprintf("SFI %d, %d records", l.SFI, l.Records)
}

// parseLogFormat reads the GET DATA 9F4F answer. Cards answer either the
// 9F4F object or its bare value.
func parseLogFormat(data []byte) ([]DOLEntry, error) {
	if v, err := tlv.GetValue(data, tlv.TagLogFormat); err == nil {
		data = v
	}
	return ParseDOL(data)
}

// parseLogRecord cuts a log record along the log format. ok is false when
// the record is shorter than the format or holds an invalid amount or date.
// A format without 9A yields records with a zero Date.
func parseLogRecord(format []DOLEntry, data []byte) (PaymentRecord, bool) {
	if len(data) < DOLLength(format) {
		return PaymentRecord{}, false
	}

	rec := PaymentRecord{
		Currency:        codes.CurrencyByNumeric(0),
		TerminalCountry: codes.CountryByNumeric(0),
	}
	var day, clock []byte
	off := 0
	for _, e := range format {
		v := data[off : off+e.Length]
		off += e.Length

		switch e.Tag {
		case tagAmountAuthorised:
			amount, err := bits.BCD(v)
			if err != nil {
				return PaymentRecord{}, false
			}
			rec.Amount = amount
		case tagCryptogramInfo:
			rec.Cryptogram = tlv.HexString(v)
		case tagTransactionType:
			if len(v) > 0 {
				rec.TransactionType = codes.TransactionType(v[0])
			}
		case tagTransactionCurrency:
			if n, err := bits.BCD(v); err == nil {
				rec.Currency = codes.CurrencyByNumeric(int(n))
			}
		case tagTerminalCountry:
			if n, err := bits.BCD(v); err == nil {
				rec.TerminalCountry = codes.CountryByNumeric(int(n))
			}
		case tagTransactionDate:
			day = v
		case tagTransactionTime:
			clock = v
		}
	}

	if day == nil {
		return rec, true
	}

	date, ok := logDate(day, clock)
	if !ok {
		return PaymentRecord{}, false
	}
	rec.Date = date
	return rec, true
}

// logDate builds a UTC time from a 9A date (YYMMDD) and an optional 9F21
// time (HHMMSS).
func logDate(day, clock []byte) (time.Time, bool) {
	if len(day) != 3 {
		return time.Time{}, false
	}
	d, ok := bcdFields(day)
	if !ok || d[1] < 1 || d[1] > 12 || d[2] < 1 || d[2] > 31 {
		return time.Time{}, false
	}

	var hh, mm, ss int
	if len(clock) == 3 {
		if c, ok := bcdFields(clock); ok && c[0] < 24 && c[1] < 60 && c[2] < 60 {
			hh, mm, ss = c[0], c[1], c[2]
		}
	}

	return time.Date(2000+d[0], time.Month(d[1]), d[2], hh, mm, ss, 0, time.UTC), true
}

func bcdFields(data []byte) ([3]int, bool) {
	var out [3]int
	for i := 0; i < 3; i++ {
		n, err := bits.BCD(data[i : i+1])
		if err != nil {
			return out, false
		}
		out[i] = int(n)
	}
	return out, true
}
