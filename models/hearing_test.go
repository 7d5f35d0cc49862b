package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeProcessNumber(t *testing.T) {
	assert.Equal(t, "001/2025", SanitizeProcessNumber("001/2025"))
	assert.Equal(t, "0001234-56.2025.8.26.0100", SanitizeProcessNumber("0001234-56.2025.8.26.0100 "))
	assert.Equal(t, "12/3", SanitizeProcessNumber("a1b2/c3"))
	assert.Equal(t, "", SanitizeProcessNumber("abc"))
}

func TestFormatHearingDate(t *testing.T) {
	assert.Equal(t, "10/10/2025", FormatHearingDate("2025-10-10"))
	assert.Equal(t, "10/10/2025", FormatHearingDate("10/10/2025"))
	assert.Equal(t, "amanhã", FormatHearingDate("amanhã"))
}

func TestSortHearings(t *testing.T) {
	hs := []Hearing{
		{ID: "bad", Details: HearingDetails{Date: "soon"}},
		{ID: "late", Details: HearingDetails{Date: "2025-12-01", Time: "09:00"}},
		{ID: "early-afternoon", Details: HearingDetails{Date: "10/10/2025", Time: "14:00"}},
		{ID: "early-morning", Details: HearingDetails{Date: "2025-10-10", Time: "08:30"}},
	}
	SortHearings(hs)

	var ids []string
	for _, h := range hs {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"early-morning", "early-afternoon", "late", "bad"}, ids)
}
