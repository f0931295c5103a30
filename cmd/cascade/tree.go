package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/cascade/internal/presentation/graph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var treeCmd = &cobra.Command{
	Use:   "tree <root-id>",
	Short: "Export a tree as Mermaid, DOT, JSON or YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, _, _, err := openSystem(cmd)
		if err != nil {
			return err
		}
		defer sys.Close()

		ctx := context.Background()
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			if _, _, err := importTree(ctx, sys, file); err != nil {
				return err
			}
		}
		root, err := sys.Store.GetSubtree(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "mermaid":
			fmt.Fprint(out, graph.GenerateMermaid(root, nil))
		case "dot":
			dot, err := graph.GenerateDOT(root, nil)
			if err != nil {
				return err
			}
			fmt.Fprint(out, dot)
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(root)
		case "yaml":
			enc := yaml.NewEncoder(out)
			defer enc.Close()
			return enc.Encode(root)
		default:
			return fmt.Errorf("unknown format %q, want mermaid, dot, json or yaml", format)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored trees",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, _, _, err := openSystem(cmd)
		if err != nil {
			return err
		}
		defer sys.Close()
		roots, err := sys.Store.ListRoots(context.Background())
		if err != nil {
			return err
		}
		for _, r := range roots {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.ID, r.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(treeCmd, listCmd)
	treeCmd.Flags().String("format", "mermaid", "Output format: mermaid, dot, json or yaml")
	treeCmd.Flags().StringP("file", "f", "", "Import a YAML or JSON tree first")
}
