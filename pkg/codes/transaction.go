package codes

import "fmt"

// TransactionType is the EMV transaction type (tag 9C), the first two
// digits of the ISO 8583 processing code.
type TransactionType byte

const (
	Purchase       TransactionType = 0x00
	CashAdvance    TransactionType = 0x01
	Cashback       TransactionType = 0x09
	Refund         TransactionType = 0x20
	Deposit        TransactionType = 0x21
	BalanceInquiry TransactionType = 0x31
	Transfer       TransactionType = 0x40
	Payment        TransactionType = 0x50
)

var transactionNames = map[TransactionType]string{
	Purchase:       "PURCHASE",
	CashAdvance:    "CASH_ADVANCE",
	Cashback:       "CASHBACK",
	Refund:         "REFUND",
	Deposit:        "DEPOSIT",
	BalanceInquiry: "BALANCE_INQUIRY",
	Transfer:       "TRANSFER",
	Payment:        "PAYMENT",
}

// Known reports whether t is one of the named types.
func (t TransactionType) Known() bool {
	_, ok := transactionNames[t]
	return ok
}

func (t TransactionType) String() string {
	if name, ok := transactionNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN (%02X)", byte(t))
}
