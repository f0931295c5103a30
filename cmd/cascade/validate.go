package main

import (
	"context"
	"fmt"

	"github.com/aretw0/cascade/internal/runtime"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [root-id]",
	Short: "Check a tree for configuration mistakes",
	Long: `Validates a stored tree, or a tree file given with --file, without
calling the model. Exits non-zero when any error is found.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var issues []runtime.Issue
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			root, err := readTreeFile(file)
			if err != nil {
				return err
			}
			issues = runtime.ValidateTree(root, nil)
		} else {
			if len(args) == 0 {
				return fmt.Errorf("give a root id or --file")
			}
			sys, _, _, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()
			issues, err = sys.Validate(context.Background(), args[0])
			if err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		for _, is := range issues {
			fmt.Fprintln(out, is.String())
		}
		if runtime.HasErrors(issues) {
			return fmt.Errorf("validation failed")
		}
		fmt.Fprintln(out, "ok")
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Validate a YAML or JSON tree and store it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, _, _, err := openSystem(cmd)
		if err != nil {
			return err
		}
		defer sys.Close()

		root, issues, err := importTree(context.Background(), sys, args[0])
		out := cmd.OutOrStdout()
		for _, is := range issues {
			fmt.Fprintln(out, is.String())
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %s\n", root.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd, importCmd)
	validateCmd.Flags().StringP("file", "f", "", "Validate a tree file instead of a stored tree")
}
