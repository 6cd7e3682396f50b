package service

import "errors"

var (
	// ErrNotFound is returned when a contract does not exist.
	ErrNotFound = errors.New("contract not found")
	// ErrScoreLocked is returned when an analysis is written twice for the same contract.
	ErrScoreLocked = errors.New("fairness score already locked")
	// ErrTextTooShort is returned when OCR produced too little text to analyze.
	ErrTextTooShort = errors.New("extracted text too short")
	// ErrRequestTooLarge is returned when the LLM provider rejects the prompt size.
	ErrRequestTooLarge = errors.New("llm request too large")
)
