/*
Package cascade executes trees of prompts against a language model.

Each node of a tree is a prompt. Running a cascade visits the nodes depth
first: a node's resolved prompt is sent to the model, its response becomes
visible to later nodes through {{placeholders}}, and action nodes turn their
JSON responses into new child nodes that are executed in turn. Question
nodes may pause the run to ask the operator for input.

# Architecture

The engine is hexagonal. pkg/ports declares what it needs (tree storage, a
generation provider, cost and trace recording, operator interaction) and
pkg/adapters supplies implementations backed by memory, Loam documents,
Redis and the OpenAI Responses API. Open selects adapters from a Config.

# Usage

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal(err)
	}
	sys, err := cascade.Open(cfg, cascade.WithLogger(logging.New(slog.LevelInfo)))
	if err != nil {
		log.Fatal(err)
	}
	defer sys.Close()

	eng := sys.NewEngine(
		runtime.WithQuestionAsker(handler),
		runtime.WithConfirmer(runner.AutoConfirm()),
	)
	res, err := eng.RunCascade(ctx, "course", sys.Options(nil))

For long-lived processes, NewSessionManager runs cascades in the background
and exposes pending questions and action previews for remote answering.
*/
package cascade
