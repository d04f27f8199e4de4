package iso7816

// READ RECORD (INS B2). P1 is the record number or identifier; P2 carries
// the SFI in bits 8-4 (0 = current EF) and the reference mode in bits 3-1.

// ReadRecordMode is bits 3-1 of P2.
type ReadRecordMode byte

const (
	RefByID_FirstOccurrence      ReadRecordMode = 0b000
	RefByID_LastOccurrence       ReadRecordMode = 0b001
	RefByID_NextOccurrence       ReadRecordMode = 0b010
	RefByID_PreviousOccurrence   ReadRecordMode = 0b011
	RefByNum_ReadP1              ReadRecordMode = 0b100
	RefByNum_ReadAllFromP1       ReadRecordMode = 0b101
	RefByNum_ReadAllFromLastToP1 ReadRecordMode = 0b110
)

// NewReadRecordCommand builds a READ RECORD expecting up to 256 bytes.
func NewReadRecordCommand(cla Class, sfi, p1 byte, mode ReadRecordMode) *CommandAPDU {
	p2 := (sfi&0x1F)<<3 | byte(mode)
	return NewCommandAPDU(cla, INS_READ_RECORD, p1, p2, nil, MaxShortLe)
}

// ReadRecord reads record number rec of the file sfi.
func ReadRecord(cla Class, sfi, rec byte) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, rec, RefByNum_ReadP1)
}
