/*
Package runner drives a cascade from a terminal.

It bridges the engine's operator ports to plain text I/O: a TextHandler
answers questions and previews from an io.Reader, policies such as
AutoConfirm and ScriptedAnswers replace the operator in batch use, and the
Runner prints progress, handles Ctrl+C and summarises the result.

# Key Components

  - Runner: runs a cascade or a single node and reports it.
  - TextHandler: interactive QuestionAsker and Confirmer over io.Reader/io.Writer.
  - ConfirmPolicy: composable confirmers (AutoConfirm, MaxChildren, ConfirmChain).
  - SignalManager: turns OS interrupts into a graceful-then-hard cancellation source.

# Usage

	h := runner.NewTextHandler(os.Stdin, os.Stdout)
	eng := runtime.NewEngine(store, provider,
		runtime.WithQuestionAsker(h),
		runtime.WithConfirmer(h),
	)
	r := runner.New(runner.WithOutput(os.Stdout))
	res, err := r.Run(ctx, eng, runner.Request{NodeID: "root"})
*/
package runner
