package model

import (
	"time"
)

// Contract represents an uploaded lease contract and its locked analysis
type Contract struct {
	ID         string          `json:"id"`
	Filename   string          `json:"filename"`
	Tenant     string          `json:"tenant"`
	ObjectName string          `json:"object_name,omitempty"`
	PDFURL     string          `json:"pdf_url,omitempty"`
	Status     string          `json:"status"` // pending, processing, completed, failed
	Text       string          `json:"-"`
	Data       *ContractData   `json:"data,omitempty"`
	Fairness   *FairnessResult `json:"fairness,omitempty"`
	Strategy   ScoringStrategy `json:"strategy,omitempty"`
	ErrorMsg   string          `json:"error_msg,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ContractStatus constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Locked reports whether a fairness result has been persisted for the contract.
func (c *Contract) Locked() bool {
	return c.Fairness != nil
}

// Analysis is the write-once payload attached to a contract after scoring.
type Analysis struct {
	Text     string
	Data     ContractData
	Fairness FairnessResult
	Strategy ScoringStrategy
}
