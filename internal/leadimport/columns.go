package leadimport

import "strings"

// Keyword sets for header sniffing. Matching is case-insensitive substring
// containment against each header cell, first matching header wins. These
// sets are load-bearing: recruiters upload spreadsheets from dozens of job
// boards and the wording varies wildly ("Driver First Name", "FNAME",
// "Given Name", "Mobile #").
var (
	firstNameKeywords  = []string{"firstname", "first name", "fname", "first", "given"}
	lastNameKeywords   = []string{"lastname", "last name", "lname", "last", "surname"}
	fullNameKeywords   = []string{"fullname", "full name", "name", "driver name", "driver"}
	emailKeywords      = []string{"email", "e-mail", "mail"}
	phoneKeywords      = []string{"phone", "mobile", "cell", "contact"}
	driverTypeKeywords = []string{"type", "role", "position", "driver type"}
	experienceKeywords = []string{"experience", "exp", "years"}
	cityKeywords       = []string{"city", "location"}
	stateKeywords      = []string{"state", "province"}
)

// findColumn returns the index of the first header containing any of the
// given keywords, or -1. Headers are scanned in sheet order, so when two
// headers both match a set the leftmost one wins; ambiguous sheets are
// accepted as-is rather than rejected.
func findColumn(headers []string, keywords []string) int {
	for i, h := range headers {
		lower := strings.ToLower(strings.TrimSpace(h))
		if lower == "" {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return i
			}
		}
	}
	return -1
}

// columnMap holds the resolved column index for every canonical field.
// An index of -1 means the sheet has no such column.
type columnMap struct {
	firstName  int
	lastName   int
	fullName   int
	email      int
	phone      int
	driverType int
	experience int
	city       int
	state      int
}

// mapColumns resolves the header row once so per-row parsing is index math.
func mapColumns(headers []string) columnMap {
	return columnMap{
		firstName:  findColumn(headers, firstNameKeywords),
		lastName:   findColumn(headers, lastNameKeywords),
		fullName:   findColumn(headers, fullNameKeywords),
		email:      findColumn(headers, emailKeywords),
		phone:      findColumn(headers, phoneKeywords),
		driverType: findColumn(headers, driverTypeKeywords),
		experience: findColumn(headers, experienceKeywords),
		city:       findColumn(headers, cityKeywords),
		state:      findColumn(headers, stateKeywords),
	}
}

// cell safely pulls a trimmed value out of a row, tolerating ragged rows
// shorter than the header.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
