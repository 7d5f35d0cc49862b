package templates

import (
	"fmt"
	"html"
)

// PasswordResetSubject is the subject line of the reset email
const PasswordResetSubject = "Redefinição de senha"

// RenderPasswordResetEmail returns the HTML and plain text bodies of the
// password reset email
func RenderPasswordResetEmail(name, link string, validFor string) (string, string) {
	safeName := html.EscapeString(name)
	safeLink := html.EscapeString(link)

	body := fmt.Sprintf(`<p>Olá, %s.</p>
      <p>Recebemos um pedido para redefinir a senha da sua conta AgendaJur.</p>
      <p style="text-align: center;"><a class="button" href="%s">Redefinir senha</a></p>
      <p>O link é válido por %s. Se você não fez este pedido, ignore este e-mail.</p>`,
		safeName, safeLink, html.EscapeString(validFor))

	plain := fmt.Sprintf("Olá, %s.\n\nRecebemos um pedido para redefinir a senha da sua conta AgendaJur.\nAcesse: %s\n\nO link é válido por %s. Se você não fez este pedido, ignore este e-mail.",
		name, link, validFor)

	return renderLayout(PasswordResetSubject, body), plain
}
