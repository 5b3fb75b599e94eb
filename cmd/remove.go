package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pdfrag/src/core/knowledgebase"
)

var removeCmd = &cobra.Command{
	Use:   "remove [namespace]",
	Short: "Delete a document and every record indexed from it",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
	removeCmd.Flags().StringP("tenant", "t", "", "Tenant ID")
	removeCmd.MarkFlagRequired("tenant")
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tenant, _ := cmd.Flags().GetString("tenant")

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.docs.Remove(ctx, tenant, args[0])
	if errors.Is(err, knowledgebase.ErrDocumentNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "Records of %s removed; no catalog entry existed.\n", args[0])
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", args[0])
	return nil
}
