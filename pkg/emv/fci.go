package emv

import (
	"fmt"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// FCI is the File Control Information (template 6F) a card returns to
// SELECT, for the payment system environment and for applications alike.
type FCI struct {
	DFName              []byte                 `tlv:"84" fmt:"ascii"`
	ProprietaryTemplate FCIProprietaryTemplate `tlv:"A5"`
}

// FCIProprietaryTemplate is the EMV part of the FCI (tag A5).
type FCIProprietaryTemplate struct {
	ApplicationLabel []byte `tlv:"50" fmt:"ascii"`

	ApplicationPriorityIndicator []byte `tlv:"87" fmt:"int"`
	SFI                          []byte `tlv:"88" fmt:"int"`
	PDOL                         []byte `tlv:"9F38"`
	LanguagePreference           []byte `tlv:"5F2D" fmt:"ascii"`
	IssuerCodeTableIndex         []byte `tlv:"9F11" fmt:"int"`
	ApplicationPreferredName     []byte `tlv:"9F12" fmt:"ascii"`

	IssuerDiscretionaryData *FCIIssuerDiscretionaryData `tlv:"BF0C"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FCIIssuerDiscretionaryData is tag BF0C. In a PPSE answer it holds the
// directory entries; in an application FCI it may point at the
// transaction log.
type FCIIssuerDiscretionaryData struct {
	Applications                       []ApplicationTemplate `tlv:"61"`
	LogEntry                           []byte                `tlv:"9F4D"`
	ProprietaryLogEntry                []byte                `tlv:"DF60"`
	IssuerIdentificationNumberExtended []byte                `tlv:"9F0C"`
	IssuerCountryCodeAlpha3            []byte                `tlv:"5F56" fmt:"ascii"`
	IssuerCountryCodeAlpha2            []byte                `tlv:"5F55" fmt:"ascii"`
	BankIdentifierCode                 []byte                `tlv:"5F54" fmt:"ascii"`
	IBAN                               []byte                `tlv:"5F53" fmt:"ascii"`
	IssuerURL                          []byte                `tlv:"5F50" fmt:"ascii"`
	IssuerIdentificationNumber         []byte                `tlv:"42"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ParseFCI decodes a SELECT answer. The 6F wrapper is optional.
func ParseFCI(data []byte) (*FCI, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data cannot be parsed")
	}

	nodes, err := tlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding FCI: %w", err)
	}

	if root, ok := tlv.Find(nodes, tlv.TagFCITemplate); ok {
		nodes = root.Children
	}

	fci := &FCI{}
	if err := tlv.UnmarshalNodes(nodes, fci); err != nil {
		return nil, fmt.Errorf("failed to map FCI: %w", err)
	}
	return fci, nil
}

// Label returns the application label (50), trimmed.
func (f *FCI) Label() string {
	return strings.TrimSpace(string(f.ProprietaryTemplate.ApplicationLabel))
}

// PDOL returns the processing options data object list, nil when absent.
func (f *FCI) PDOL() []byte {
	return f.ProprietaryTemplate.PDOL
}

// DirectorySFI returns the SFI of the PSE directory file (88).
func (f *FCI) DirectorySFI() (byte, bool) {
	sfi := f.ProprietaryTemplate.SFI
	if len(sfi) != 1 || sfi[0] == 0 {
		return 0, false
	}
	return sfi[0], true
}

// LogLocation reads the log entry (9F4D, or the proprietary DF60): SFI of
// the log file and number of records.
func (f *FCI) LogLocation() (LogEntry, bool) {
	dd := f.ProprietaryTemplate.IssuerDiscretionaryData
	if dd == nil {
		return LogEntry{}, false
	}
	for _, raw := range [][]byte{dd.LogEntry, dd.ProprietaryLogEntry} {
		if len(raw) >= 2 && raw[0] != 0 && raw[1] != 0 {
			return LogEntry{SFI: raw[0], Records: raw[1]}, true
		}
	}
	return LogEntry{}, false
}

// Describe generates a detailed, standardized report of the FCI content.
func (f *FCI) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== EMV FCI TEMPLATE ===")

	tlv.WriteStructFields(&sb, "FCI", f)
	tlv.WriteStructFields(&sb, "Proprietary", f.ProprietaryTemplate)

	if dd := f.ProprietaryTemplate.IssuerDiscretionaryData; dd != nil {
		tlv.WriteStructFields(&sb, "Discretionary", dd)
		for i, app := range dd.Applications {
			tlv.WriteStructFields(&sb, fmt.Sprintf("App[%d]", i+1), app)
		}
	}

	return sb.String()
}
