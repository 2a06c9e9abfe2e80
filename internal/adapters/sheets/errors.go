package sheets

import "errors"

// ErrNoSpreadsheet is returned when no spreadsheet ID is configured.
var ErrNoSpreadsheet = errors.New("spreadsheet id is required")
