package emv

import (
	"fmt"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// AFLEntry is one 4-byte group of the Application File Locator (tag 94).
type AFLEntry struct {
	SFI            byte
	FirstRecord    byte
	LastRecord     byte
	OfflineRecords byte
}

// OfflineAuthentication reports whether records of this range take part in
// offline data authentication.
func (e AFLEntry) OfflineAuthentication() bool {
	return e.OfflineRecords > 0
}

// Valid rejects SFI 0 and inverted or zero-based record ranges.
func (e AFLEntry) Valid() bool {
	return e.SFI >= 1 && e.SFI <= 30 && e.FirstRecord >= 1 && e.LastRecord >= e.FirstRecord
}

func (e AFLEntry) String() string {
	return fmt.Sprintf("SFI %d records %d-%d (offline %d)", e.SFI, e.FirstRecord, e.LastRecord, e.OfflineRecords)
}

// ParseAFL splits an AFL value into entries. Byte 0 carries the SFI in bits
// 8-4, then first record, last record and offline record count.
func ParseAFL(data []byte) ([]AFLEntry, error) {
	if len(data)%4 != 0 {
		return nil, &tlv.DecodeError{
			Tag:    tlv.TagAFL,
			Offset: len(data) - len(data)%4,
			Reason: fmt.Sprintf("AFL length %d is not a multiple of 4", len(data)),
		}
	}

	entries := make([]AFLEntry, 0, len(data)/4)
	for i := 0; i < len(data); i += 4 {
		entries = append(entries, AFLEntry{
			SFI:            data[i] >> 3,
			FirstRecord:    data[i+1],
			LastRecord:     data[i+2],
			OfflineRecords: data[i+3],
		})
	}
	return entries, nil
}

// findAFL locates the AFL in a GPO response: tag 94 (format 2, template
// 77) or the bytes following the AIP in tag 80 (format 1).
func findAFL(nodes []tlv.Node) ([]byte, error) {
	if n, ok := tlv.FindRecursive(nodes, tlv.TagAFL); ok {
		return n.Value, nil
	}
	if n, ok := tlv.Find(nodes, tlv.TagResponseFormat1); ok {
		if len(n.Value) < 2 {
			return nil, &tlv.DecodeError{Tag: tlv.TagResponseFormat1, Reason: "response format 1 shorter than the AIP"}
		}
		return n.Value[2:], nil
	}
	return nil, &tlv.DecodeError{Tag: tlv.TagAFL, Reason: "AFL missing from GET PROCESSING OPTIONS response"}
}
