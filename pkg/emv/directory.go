package emv

import (
	"fmt"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/bits"
	"github.com/gregLibert/emv-reader/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// DirectoryDiscretionaryTemplate is tag 73 inside a directory entry.
type DirectoryDiscretionaryTemplate struct {
	ApplicationSelectionRegisteredProprietaryData []byte `tlv:"9F0A"`
	IssuerCountryCodeAlpha2                       []byte `tlv:"5F55" fmt:"ascii"`
	IssuerURL                                     []byte `tlv:"5F50" fmt:"ascii"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ApplicationTemplate (tag 61) is one entry of a payment system directory.
type ApplicationTemplate struct {
	AID                          []byte                         `tlv:"4F"`
	ApplicationLabel             []byte                         `tlv:"50" fmt:"ascii"`
	ApplicationPriorityIndicator []byte                         `tlv:"87" fmt:"int"`
	DirectoryDiscretionaryData   DirectoryDiscretionaryTemplate `tlv:"73"`
	ApplicationPreferredName     []byte                         `tlv:"9F12" fmt:"ascii"`
	DDFName                      []byte                         `tlv:"9D" fmt:"ascii"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// Candidate converts the entry for discovery. Entries without a 5 to 16
// byte AID are rejected.
func (a ApplicationTemplate) Candidate() (Candidate, bool) {
	if len(a.AID) < 5 || len(a.AID) > 16 {
		return Candidate{}, false
	}
	return a.entry(), true
}

func (a ApplicationTemplate) entry() Candidate {
	c := Candidate{
		AID:   append([]byte(nil), a.AID...),
		Label: strings.TrimSpace(string(a.ApplicationLabel)),
	}
	if len(a.ApplicationPriorityIndicator) > 0 {
		// bits 4-1, 0 means no priority; bit 8 only asks for cardholder
		// confirmation
		if p := int(bits.GetRange(a.ApplicationPriorityIndicator[0], 4, 1)); p != 0 {
			c.Priority = &p
		}
	}
	return c
}

// DirectoryRecord is a record of the PSE directory file, wrapped in a
// record template (70).
type DirectoryRecord struct {
	Applications []ApplicationTemplate `tlv:"61"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ParseDirectoryRecord interprets the answer to READ RECORD on the PSE
// directory file.
func ParseDirectoryRecord(data []byte) (*DirectoryRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty record data")
	}

	nodes, err := tlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding directory record: %w", err)
	}

	root, ok := tlv.Find(nodes, tlv.TagRecordTemplate)
	if !ok {
		return nil, &tlv.DecodeError{Tag: tlv.TagRecordTemplate, Reason: "missing record template"}
	}

	record := &DirectoryRecord{}
	if err := tlv.UnmarshalNodes(root.Children, record); err != nil {
		return nil, fmt.Errorf("failed to map directory record: %w", err)
	}
	return record, nil
}

// Describe generates a report for all applications found in the record.
func (r *DirectoryRecord) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== EMV DIRECTORY RECORD ===")

	tlv.WriteStructFields(&sb, "Record", r)

	for i, app := range r.Applications {
		prefix := fmt.Sprintf("App[%d]", i+1)
		tlv.WriteStructFields(&sb, prefix, app)
		tlv.WriteStructFields(&sb, prefix+".Discretionary", app.DirectoryDiscretionaryData)
	}

	return sb.String()
}
