package reconcile

import (
	"strings"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/timeparse"
)

// ParseSubmissions converts form rows (header excluded) into submissions in
// storage order. A row whose timestamp cannot be parsed is kept and flagged
// Malformed.
func ParseSubmissions(rows [][]string, cols Columns, loc *time.Location) []model.Submission {
	if loc == nil {
		loc = time.UTC
	}
	subs := make([]model.Submission, len(rows))
	for i, row := range rows {
		s := model.Submission{
			Email:     cell(row, cols.Email),
			EventCode: cell(row, cols.EventCode),
			FirstName: cell(row, cols.FirstName),
			LastName:  cell(row, cols.LastName),
			Anonymous: cell(row, cols.Anonymous),
		}
		ts, err := timeparse.Timestamp(cell(row, cols.Timestamp), loc)
		if err != nil {
			s.Malformed = true
		} else {
			s.Timestamp = ts
		}
		subs[i] = s
	}
	return subs
}

// IsAnonymous applies the form's anonymity policy: the answer counts as
// anonymous when it contains "yes" or is exactly "y", "true" or "1"
// (case-insensitive). Blank and every other answer is public.
func IsAnonymous(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	switch a {
	case "":
		return false
	case "y", "true", "1":
		return true
	}
	return strings.Contains(a, "yes")
}

func cell(row []string, i int) string {
	if i >= 0 && i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}
