package models

import (
	"sort"
	"strings"
	"time"
)

// MaxAttachments is the most proceeding documents a single hearing may reference
const MaxAttachments = 50

// Hearing holds the structure for the hearings collection in mongo
type Hearing struct {
	ID      string         `json:"_id" bson:"_id"`
	Details HearingDetails `json:"hearing" bson:"hearing"`
	Version int32          `json:"__v" bson:"__v"`
}

// HearingDetails holds the structure for the inner hearing structure as
// defined in the hearings collection in mongo
type HearingDetails struct {
	ProcessNumber string       `json:"processNumber" bson:"processNumber"`
	ClientEmail   string       `json:"clientEmail" bson:"clientEmail"`
	Date          string       `json:"date" bson:"date"`
	Time          string       `json:"time" bson:"time"`
	Location      string       `json:"location" bson:"location"`
	Parties       string       `json:"parties" bson:"parties"`
	Nature        string       `json:"nature" bson:"nature"`
	Description   string       `json:"description" bson:"description"`
	Attachments   []Attachment `json:"attachments" bson:"attachments"`

	// Metadata
	CreatedBy string    `json:"createdBy" bson:"createdBy"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Attachment references a proceeding document previously uploaded to object storage
type Attachment struct {
	Name string `json:"name" bson:"name"`
	URL  string `json:"url" bson:"url"`
}

var hearingDateLayouts = []string{"02/01/2006", "2006-01-02"}

// ParseHearingDate parses the two date formats hearings are entered with,
// DD/MM/YYYY and YYYY-MM-DD
func ParseHearingDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range hearingDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatHearingDate renders a hearing date as DD/MM/YYYY, returning the input
// untouched when it is in neither known format
func FormatHearingDate(s string) string {
	t, ok := ParseHearingDate(s)
	if !ok {
		return s
	}
	return t.Format("02/01/2006")
}

// SanitizeProcessNumber drops every character other than digits, '.', '/' and '-'
func SanitizeProcessNumber(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '/', r == '-':
			return r
		}
		return -1
	}, s)
}

// SortHearings orders hearings ascending by date. Hearings whose date cannot
// be parsed go last; ties break on time and then on process number.
func SortHearings(hs []Hearing) {
	sort.SliceStable(hs, func(i, j int) bool {
		a, b := hs[i].Details, hs[j].Details
		ta, okA := ParseHearingDate(a.Date)
		tb, okB := ParseHearingDate(b.Date)
		if okA != okB {
			return okA
		}
		if okA && !ta.Equal(tb) {
			return ta.Before(tb)
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ProcessNumber < b.ProcessNumber
	})
}
