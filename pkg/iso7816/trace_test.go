package iso7816

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

func makeTx(data string, sw StatusWord) Transaction {
	return Transaction{
		Command:  NewCommandAPDU(ClassInterindustry, INS_SELECT, 0x04, 0x00, nil, MaxShortLe),
		Response: &ResponseAPDU{Data: tlv.Hex(data), Status: sw},
	}
}

func TestTransaction_IsSuccess(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want bool
	}{
		{"Success 9000", makeTx("", SW_NO_ERROR), true},
		{"Pending 6110", makeTx("", NewStatusWord(0x61, 0x10)), false},
		{"Error 6A82", makeTx("", SW_ERR_FILE_NOT_FOUND), false},
		{"Nil Response", Transaction{Command: &CommandAPDU{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tx.IsSuccess(); got != tt.want {
				t.Errorf("Transaction.IsSuccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrace(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		var tr Trace
		if tr.Last() != nil {
			t.Error("Last() on empty trace should be nil")
		}
		if tr.IsSuccess() {
			t.Error("IsSuccess() on empty trace should be false")
		}
		if resp := tr.Response(); resp.Status != 0 || len(resp.Data) != 0 {
			t.Errorf("Response() on empty trace = %v", resp)
		}
	})

	t.Run("GET RESPONSE Chain", func(t *testing.T) {
		tr := Trace{
			makeTx("", NewStatusWord(0x61, 0x02)),
			makeTx("6F00", NewStatusWord(0x61, 0x01)),
			makeTx("AA", SW_NO_ERROR),
		}
		if !tr.IsSuccess() {
			t.Error("IsSuccess() = false, want true")
		}
		want := &ResponseAPDU{Data: tlv.Hex("6F00AA"), Status: SW_NO_ERROR}
		if diff := cmp.Diff(want, tr.Response()); diff != "" {
			t.Errorf("Response() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Wrong Length Discards Earlier Data", func(t *testing.T) {
		tr := Trace{
			makeTx("", NewStatusWord(0x6C, 0x03)),
			makeTx("010203", SW_NO_ERROR),
		}
		if got := tlv.HexString(tr.Response().Data); got != "010203" {
			t.Errorf("Response().Data = %s, want 010203", got)
		}
	})

	t.Run("Final Error", func(t *testing.T) {
		tr := Trace{makeTx("", NewStatusWord(0x61, 0x02)), makeTx("", SW_ERR_WRONG_LENGTH)}
		if tr.IsSuccess() {
			t.Error("IsSuccess() = true, want false")
		}
	})
}

func TestTrace_Describe(t *testing.T) {
	tr := Trace{makeTx("6F00", SW_NO_ERROR)}
	want := strings.Join([]string{
		">> SELECT | P1: 04, P2: 00 | Lc: 0 | Le: 256",
		"   00A4040000",
		"<< Data (2 bytes) | Status: [9000] No error",
		"   6F00",
	}, "\n")

	if diff := cmp.Diff(want, tr.Describe()); diff != "" {
		t.Errorf("Describe() mismatch (-want +got):\n%s", diff)
	}
}
