package model

import "time"

// Trigger sources.
const (
	SourceTimer  = "timer"
	SourceForm   = "form"
	SourceManual = "manual"
	SourceCLI    = "cli"
)

// Trigger asks for one reconciliation run.
type Trigger struct {
	ID     string
	Source string
	At     time.Time
}
