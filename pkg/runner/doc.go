/*
Package runner drives a workflow from a terminal or any line-based stream.

It is a caller of ports.Workflow: it starts (or continues) a run, shows each
result through an IOHandler and feeds the next line of input back to Resume
until the run leaves AWAITING_INPUT or the input ends.

# Key Components

  - Runner: the loop between a Workflow and an IOHandler.
  - TextHandler: interactive text IO with a styled prompt.
  - JSONHandler: JSON-lines IO for headless integrations.
  - SanitizeInput: size limit and control character stripping for raw input.

# Usage

	r := runner.NewRunner(
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)
	res, err := r.Run(ctx, wf, nil)
*/
package runner
