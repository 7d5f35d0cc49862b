package templates

import (
	"fmt"
	"html"
	"strings"

	"github.com/linesmerrill/agendajur-api/models"
)

// HearingReminderSubject is the subject line of the daily reminder
const HearingReminderSubject = "Lembrete de audiências"

// RenderHearingReminderEmail lists the hearings a client has on day
func RenderHearingReminderEmail(name, day string, hearings []models.Hearing) (string, string) {
	var rows, lines strings.Builder
	for _, h := range hearings {
		d := h.Details
		fmt.Fprintf(&rows, `<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
			html.EscapeString(d.Time), html.EscapeString(d.ProcessNumber),
			html.EscapeString(d.Nature), html.EscapeString(d.Location))
		fmt.Fprintf(&lines, "- %s | Processo %s | %s | %s\n", d.Time, d.ProcessNumber, d.Nature, d.Location)
	}

	body := fmt.Sprintf(`<p>Olá, %s.</p>
      <p>Você tem %d audiência(s) marcada(s) para %s:</p>
      <table>%s</table>`,
		html.EscapeString(name), len(hearings), html.EscapeString(day), rows.String())

	plain := fmt.Sprintf("Olá, %s.\n\nVocê tem %d audiência(s) marcada(s) para %s:\n%s",
		name, len(hearings), day, lines.String())

	return renderLayout(HearingReminderSubject, body), plain
}
