package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = errors.New("member not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrMissingSheet = errors.New("sheet not found")
)

// MissingSheetError names the table that could not be found.
type MissingSheetError struct {
	Sheet string
}

func (e *MissingSheetError) Error() string {
	return fmt.Sprintf("sheet %q not found", e.Sheet)
}

// Is lets errors.Is match ErrMissingSheet.
func (e *MissingSheetError) Is(target error) bool {
	return target == ErrMissingSheet
}
