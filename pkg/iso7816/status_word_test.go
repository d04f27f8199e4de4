package iso7816

import (
	"testing"
)

func TestStatusWord_Classification(t *testing.T) {
	tests := []struct {
		sw         StatusWord
		success    bool
		warning    bool
		isErr      bool
		triggering bool
		counter    bool
	}{
		{SW_NO_ERROR, true, false, false, false, false},
		{NewStatusWord(0x61, 0x10), false, false, false, false, false},
		{NewStatusWord(0x62, 0x02), false, true, false, true, false},
		{NewStatusWord(0x62, 0x80), false, true, false, true, false},
		{NewStatusWord(0x62, 0x81), false, true, false, false, false},
		{NewStatusWord(0x64, 0x10), false, false, true, true, false},
		{NewStatusWord(0x63, 0xC3), false, true, false, false, true},
		{SW_WARN_FILE_FILLED, false, true, false, false, false},
		{SW_ERR_FILE_NOT_FOUND, false, false, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.sw.String(), func(t *testing.T) {
			if got := tt.sw.IsSuccess(); got != tt.success {
				t.Errorf("IsSuccess() = %v, want %v", got, tt.success)
			}
			if got := tt.sw.IsWarning(); got != tt.warning {
				t.Errorf("IsWarning() = %v, want %v", got, tt.warning)
			}
			if got := tt.sw.IsError(); got != tt.isErr {
				t.Errorf("IsError() = %v, want %v", got, tt.isErr)
			}
			if got := tt.sw.IsTriggeringByCard(); got != tt.triggering {
				t.Errorf("IsTriggeringByCard() = %v, want %v", got, tt.triggering)
			}
			if got := tt.sw.IsCounter(); got != tt.counter {
				t.Errorf("IsCounter() = %v, want %v", got, tt.counter)
			}
		})
	}
}

func TestStatusWord_Verbose(t *testing.T) {
	tests := []struct {
		sw   StatusWord
		want string
	}{
		{SW_NO_ERROR, "[9000] No error"},
		{NewStatusWord(0x61, 0x1A), "[611A] Process completed, 26 bytes available"},
		{NewStatusWord(0x6C, 0x0F), "[6C0F] Wrong length, correct Le is 15"},
		{NewStatusWord(0x63, 0xC2), "[63C2] Warning: state changed, counter = 2"},
		{NewStatusWord(0x64, 0x04), "[6404] Triggering by the card, 4 bytes to query"},
		{SW_ERR_RECORD_NOT_FOUND, "[6A83] Record not found"},
		{NewStatusWord(0x69, 0x99), "[6999] Checking error: command not allowed"},
		{NewStatusWord(0x93, 0x01), "[9301] Unknown status"},
	}

	for _, tt := range tests {
		t.Run(tt.sw.String(), func(t *testing.T) {
			if got := tt.sw.Verbose(); got != tt.want {
				t.Errorf("Verbose() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusWord_Bytes(t *testing.T) {
	sw := NewStatusWord(0x6A, 0x82)
	if sw != SW_ERR_FILE_NOT_FOUND {
		t.Errorf("NewStatusWord(6A, 82) = %s", sw)
	}
	if sw.SW1() != 0x6A || sw.SW2() != 0x82 {
		t.Errorf("SW1/SW2 = %02X/%02X", sw.SW1(), sw.SW2())
	}
}
