/*
Package domain contains the core models of the arbor workflow engine.

It defines the compiled graph that the engine walks, the snapshots of state
it records, the results handed back to callers and the error taxonomy shared
by the compiler and runtime. The package is free of I/O and persistence
concerns.

# Key Entities

  - NodeSpec: a named unit of work, either a built-in prompt node, a handler
    from the registry or a synthetic input node inserted by the compiler.
  - Transition: a plain target or a condition with then/else branches.
  - Graph: the immutable compiled workflow, including the state schema.
  - Snapshot: an indexed, immutable copy of all state fields.
  - Result: the outcome of a run or resume, carrying a Status.
*/
package domain
