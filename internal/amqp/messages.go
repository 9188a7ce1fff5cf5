package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/diag"
)

// LedgerSyncMessage carries a committed transaction batch to the ledger worker.
// The records travel in full so the worker needs no access to the store.
type LedgerSyncMessage struct {
	UserID       string             `json:"userId"`
	GroupID      string             `json:"groupId,omitempty"`
	Transactions []core.Transaction `json:"transactions"`
	Timestamp    time.Time          `json:"timestamp"`
}

func NewLedgerSyncMessage(uid string, txs []core.Transaction) *LedgerSyncMessage {
	msg := &LedgerSyncMessage{
		UserID:       uid,
		Transactions: txs,
		Timestamp:    time.Now().UTC(),
	}
	if len(txs) > 0 && txs[0].GroupID != nil {
		msg.GroupID = *txs[0].GroupID
	}
	return msg
}

// Validate rejects messages the worker could never apply.
func (m *LedgerSyncMessage) Validate() error {
	if m.UserID == "" {
		return errors.New("ledger sync message without user id")
	}
	if len(m.Transactions) == 0 {
		return errors.New("ledger sync message without transactions")
	}
	for _, tx := range m.Transactions {
		if tx.UserID != m.UserID {
			return errors.New("ledger sync message mixes users")
		}
	}
	return nil
}

func (m *LedgerSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerSyncMessageFromJSON(data []byte) (*LedgerSyncMessage, error) {
	var msg LedgerSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DiagnosticMessage is a denied store request published for operators.
type DiagnosticMessage struct {
	Report    diag.PermissionError `json:"report"`
	Timestamp time.Time            `json:"timestamp"`
}

func NewDiagnosticMessage(e *diag.PermissionError) *DiagnosticMessage {
	return &DiagnosticMessage{Report: *e, Timestamp: time.Now().UTC()}
}

func (m *DiagnosticMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DiagnosticMessageFromJSON(data []byte) (*DiagnosticMessage, error) {
	var msg DiagnosticMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Report.Path == "" || msg.Report.Operation == "" {
		return nil, errors.New("diagnostic message without path or operation")
	}
	return &msg, nil
}
