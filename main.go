// agendajur serves the AgendaJur hearing scheduling API.
//
// Usage:
//
//	echo 'Nova@Senha1' | agendajur create-admin --name "Dra. Ana"
//	agendajur serve
//	agendajur report -o relatorio_agendajur.txt
//	echo 'Nova@Senha1' | agendajur set-password advogada@agendajur.app
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "agendajur",
		Short: "Hearing scheduling API for a law practice",
		Long: `agendajur runs the AgendaJur API: sessions, role scoped hearings with
PDF attachments, the audit log and daily hearing reminders.

Configuration is read from the environment (DB_URI, ADMIN_EMAIL,
JWT_SECRET, CLOUDINARY_*, SENDGRID_API_KEY, ...).`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(setPasswordCmd())
	rootCmd.AddCommand(createAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
