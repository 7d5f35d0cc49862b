// Package text renders the plain text audit log report.
package text

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/linesmerrill/agendajur-api/models"
)

// ReportFileName is the name the report is offered under
const ReportFileName = "relatorio_agendajur.txt"

// ReportLine renders one entry as "[DD/MM/YYYY às HH:MM:SS] - [TYPE] - message"
// in loc
func ReportLine(e models.LogEntry, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	ts := e.Timestamp.In(loc)
	return fmt.Sprintf("[%s às %s] - [%s] - %s", ts.Format("02/01/2006"), ts.Format("15:04:05"), strings.ToUpper(string(e.Type)), e.Message)
}

// WriteReport writes one line per entry in the order given, newline separated
func WriteReport(w io.Writer, entries []models.LogEntry, loc *time.Location) error {
	for i, e := range entries {
		line := ReportLine(e, loc)
		if i > 0 {
			line = "\n" + line
		}
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}
