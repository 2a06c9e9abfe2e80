package reconcile

import (
	"strconv"
	"strings"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/timeparse"
)

// RecordHeader is the header row of the record table.
var RecordHeader = []string{"NetID", "FirstName", "LastName", "Anonymous", "Points", "LastUpdate"}

// Input table headers, written when a backend creates the tables empty.
var (
	EventHeader = []string{"Date", "Start", "End", "Name", "Type", "Code"}
	PointHeader = []string{"Event Type", "Points"}
)

// SubmissionHeader names the form fields in cols order.
func SubmissionHeader(cols Columns) []string {
	width := 1 + max(cols.Timestamp, cols.Email, cols.EventCode, cols.FirstName, cols.LastName, cols.Anonymous)
	h := make([]string, width)
	h[cols.Timestamp] = "Timestamp"
	h[cols.Email] = "Email Address"
	h[cols.EventCode] = "Event Code"
	h[cols.FirstName] = "First Name"
	h[cols.LastName] = "Last Name"
	h[cols.Anonymous] = "Anonymous"
	return h
}

// Anonymous column values.
const (
	anonymousYes = "Yes"
	anonymousNo  = "No"
)

// RecordRows serializes members, in order, into record table rows.
func RecordRows(members []model.Member, layout string, loc *time.Location) [][]string {
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	if loc == nil {
		loc = time.UTC
	}
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		anon := anonymousNo
		if m.Anonymous {
			anon = anonymousYes
		}
		rows = append(rows, []string{
			m.NetID,
			m.FirstName,
			m.LastName,
			anon,
			strconv.FormatFloat(m.Points, 'f', -1, 64),
			m.LastUpdate.In(loc).Format(layout),
		})
	}
	return rows
}

// ParseRecords reads record rows back into members. LastUpdate is read with
// layout first, then with the usual sheet formats. Rows without a netID are
// dropped; unparseable points or timestamps read as zero.
func ParseRecords(rows [][]string, layout string, loc *time.Location) []model.Member {
	if loc == nil {
		loc = time.UTC
	}
	members := make([]model.Member, 0, len(rows))
	for _, row := range rows {
		netID := cell(row, 0)
		if netID == "" {
			continue
		}
		m := model.Member{
			NetID:     netID,
			FirstName: cell(row, 1),
			LastName:  cell(row, 2),
			Anonymous: strings.EqualFold(cell(row, 3), anonymousYes),
		}
		if p, err := strconv.ParseFloat(cell(row, 4), 64); err == nil {
			m.Points = p
		}
		if ts, err := timeparse.TimestampIn(cell(row, 5), layout, loc); err == nil {
			m.LastUpdate = ts
		}
		members = append(members, m)
	}
	return members
}
