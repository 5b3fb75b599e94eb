package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pdfrag/src/core/knowledgebase"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question, optionally grounded on one document",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringP("tenant", "t", "", "Tenant ID")
	askCmd.MarkFlagRequired("tenant")
	askCmd.Flags().StringP("namespace", "n", "", "Document namespace to ground the answer on")
	askCmd.Flags().StringP("session", "s", "", "Chat session ID to record the exchange under")
	askCmd.Flags().Bool("no-stream", false, "Wait for the whole answer instead of streaming it")
	askCmd.Flags().Bool("sources", false, "Print the passages the answer was grounded on")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tenant, _ := cmd.Flags().GetString("tenant")
	namespace, _ := cmd.Flags().GetString("namespace")
	session, _ := cmd.Flags().GetString("session")
	noStream, _ := cmd.Flags().GetBool("no-stream")
	showSources, _ := cmd.Flags().GetBool("sources")
	out := cmd.OutOrStdout()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if noStream {
		answer, err := a.pipeline.AnswerOnce(ctx, tenant, namespace, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, answer)
		return nil
	}

	answer, err := a.chat.Ask(ctx, knowledgebase.AskRequest{
		Tenant:    tenant,
		SessionID: session,
		Namespace: namespace,
		Query:     args[0],
	})
	if err != nil {
		return err
	}

	for fragment, err := range answer.Seq() {
		if err != nil {
			fmt.Fprintln(out)
			return err
		}
		fmt.Fprint(out, fragment)
	}
	fmt.Fprintln(out)

	if showSources {
		for _, p := range answer.Sources() {
			fmt.Fprintf(out, "[%s %.3f] %s\n", p.ID, p.Score, p.Text)
		}
	}
	return nil
}
