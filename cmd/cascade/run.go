package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/cascade/internal/presentation/tui"
	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
	"github.com/aretw0/cascade/pkg/runner"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var runCmd = &cobra.Command{
	Use:   "run <node-id>",
	Short: "Run a cascade from a node",
	Long: `Executes the node and every descendant depth-first. Press Ctrl+C once to
stop after the current node, twice to abort immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, domain.ModeCascade, args[0])
	},
}

var nodeCmd = &cobra.Command{
	Use:   "node <node-id>",
	Short: "Run a single node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, domain.ModeSingle, args[0])
	},
}

func execute(cmd *cobra.Command, mode domain.RunMode, nodeID string) error {
	sys, _, logger, err := openSystem(cmd)
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

	noBanner, _ := cmd.Flags().GetBool("no-banner")
	plain, _ := cmd.Flags().GetBool("plain")
	out := cmd.OutOrStdout()
	if !noBanner {
		tui.PrintBanner(out)
	}

	var render runner.ContentRenderer
	if !plain {
		render = tui.NewRenderer(100)
	}
	handler := runner.NewTextHandler(os.Stdin, out, runner.WithTextHandlerRenderer(render))

	asker, err := questionAsker(cmd, handler)
	if err != nil {
		return err
	}
	confirmer := confirmPolicy(cmd, handler)

	signals := runner.NewSignalManager()
	defer signals.Stop()

	showResponses, _ := cmd.Flags().GetBool("responses")
	r := runner.New(
		runner.WithOutput(out),
		runner.WithLogger(logger),
		runner.WithRenderer(render),
		runner.WithResponses(showResponses),
		runner.WithInterruptSource(signals.C()),
	)

	seed, err := parseSeed(cmd)
	if err != nil {
		return err
	}
	opts := sys.Options(seed)
	if depth, _ := cmd.Flags().GetInt("max-depth"); depth > 0 {
		opts.MaxDepth = depth
	}

	eng := sys.NewEngine(
		runtime.WithQuestionAsker(asker),
		runtime.WithConfirmer(confirmer),
		runtime.WithHooks(domain.ComposeHooks(sys.Hooks(), r.Hooks())),
	)
	res, err := r.Run(ctx, eng, runner.Request{Mode: mode, NodeID: nodeID, Options: opts})
	if err != nil {
		return err
	}
	if res.Status == domain.RunFailed {
		return fmt.Errorf("run finished with status %s", res.Status)
	}
	return nil
}

func questionAsker(cmd *cobra.Command, fallback ports.QuestionAsker) (ports.QuestionAsker, error) {
	path, _ := cmd.Flags().GetString("answers")
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answers: %w", err)
	}
	var answers map[string]string
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("failed to parse answers: %w", err)
	}
	if headless, _ := cmd.Flags().GetBool("headless"); headless {
		fallback = nil
	}
	return runner.ScriptedAnswers(answers, fallback), nil
}

func confirmPolicy(cmd *cobra.Command, handler ports.Confirmer) ports.Confirmer {
	var chain []ports.Confirmer
	if n, _ := cmd.Flags().GetInt("max-children"); n > 0 {
		chain = append(chain, runner.MaxChildren(n))
	}
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		chain = append(chain, runner.AutoConfirm())
	} else {
		chain = append(chain, handler)
	}
	return runner.ConfirmChain(chain...)
}

// parseSeed reads repeated --var key=value flags.
func parseSeed(cmd *cobra.Command) (map[string]any, error) {
	vars, _ := cmd.Flags().GetStringArray("var")
	if len(vars) == 0 {
		return nil, nil
	}
	seed := make(map[string]any, len(vars))
	for _, kv := range vars {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", kv)
		}
		seed[strings.TrimSpace(k)] = v
	}
	return seed, nil
}

func init() {
	for _, c := range []*cobra.Command{runCmd, nodeCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringP("file", "f", "", "Import a YAML or JSON tree before running")
		c.Flags().StringArray("var", nil, "Seed variable as key=value (repeatable)")
		c.Flags().String("answers", "", "YAML map of scripted answers keyed by variable or node id")
		c.Flags().Bool("headless", false, "Never prompt; unanswered questions cancel their node (requires --answers)")
		c.Flags().BoolP("yes", "y", false, "Apply every action without asking")
		c.Flags().Int("max-children", 0, "Reject actions that would create more children than this")
		c.Flags().Bool("responses", false, "Print every response in the final report")
		c.Flags().Bool("plain", false, "Disable markdown rendering")
		c.Flags().Bool("no-banner", false, "Do not print the banner")
	}
	runCmd.Flags().Int("max-depth", 0, "Depth limit (default from config)")
}
