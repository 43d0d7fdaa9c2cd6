/*
Package arbor compiles declarative workflow templates into execution graphs
and runs them with durable, recoverable state.

A template names a state schema, a set of nodes and the transitions between
them. Nodes marked as intervene points suspend the run until external input
arrives, so a workflow can span many requests or many processes.

# Concept

Arbor separates three things: the compiled Graph (immutable, shareable),
the state of one run (a schema-checked value map with an indexed snapshot
history) and the artifacts that outlive the process (snapshots, a
checkpoint and a cursor in an ArtifactStore). Adapters for the filesystem,
Redis and cloud buckets live under pkg/adapters.

# Key Features

  - All-or-nothing compilation: a template either yields a valid graph or a
    CompileError naming the offending path.
  - Sandboxed conditions: transitions are guarded by a small expression
    language that can only read state.
  - Suspend and resume: a run parks at intervene points and continues with
    Resume, in this process or, after Restore, in another.
  - Recovery: a failing node rolls the state back to the last valid
    snapshot instead of corrupting it.

# Usage

	wf, err := arbor.Load("review.yaml",
		arbor.WithStore(file.New(".arbor/artifacts")),
		arbor.WithSessionID("user-1"),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer wf.Close()

	res, err := wf.Run(ctx, map[string]any{"topic": "graphs"})
	for err == nil && res.Suspended() {
		res, err = wf.Resume(ctx, readLine())
	}
*/
package arbor
