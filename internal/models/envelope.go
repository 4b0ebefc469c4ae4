package models

import "time"

// TransactionEnvelope represents a raw ledger transaction as returned by the
// fetch adapter. It is produced externally and treated as read-only here.
type TransactionEnvelope struct {
	// Identification
	ID          string    `json:"transaction_id"` // 64 lowercase hex chars
	ConfirmedAt time.Time `json:"confirmed_at"`   // Ledger confirmation time

	// Raw transaction body
	Inputs  []TxInput  `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`
}

// TxInput is a reference to a previous transaction output being spent.
type TxInput struct {
	PreviousTxID  string `json:"previous_transaction_id"`
	PreviousIndex uint32 `json:"previous_index"`
}

// TxOutput is a single transaction output. The protocol payload is embedded
// in the script bytes of one of the outputs.
type TxOutput struct {
	Amount      uint64 `json:"amount"`
	ScriptBytes []byte `json:"-"`
	ScriptHex   string `json:"script_public_key,omitempty"`

	// Address resolved by the fetch adapter, may be empty
	Address string `json:"address,omitempty"`
}
