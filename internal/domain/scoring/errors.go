package scoring

import "errors"

// Sentinel kinds for schedule rows.
var (
	ErrInvalidPoints  = errors.New("points is not a number")
	ErrNegativePoints = errors.New("points must be a finite non-negative number")
)
