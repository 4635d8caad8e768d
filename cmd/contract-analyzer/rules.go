package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joelkehle/contract-analyzer/internal/contractscore"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the active rulebook as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scorer, err := a.scorer()
			if err != nil {
				return err
			}
			blob, err := scorer.Rulebook().EncodeYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(blob)
			return err
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate a rulebook file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rb, err := contractscore.LoadRulebook(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d clause patterns, %d risk rules, %d mistake rules)\n",
				args[0], len(rb.Clauses), len(rb.Risks), len(rb.Mistakes))
			return nil
		},
	})
	return cmd
}
