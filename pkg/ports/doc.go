/*
Package ports defines the driven ports (interfaces) of the arbor engine.

These interfaces decouple the core from external implementations, allowing
workflows to persist to various storage backends and to talk to any model
client.

# Key Interfaces

  - ArtifactStore: durable key/value storage for snapshots, checkpoints and cursors.
  - ModelClient: the capability client node handlers receive.
  - TemplateLoader: source of raw workflow templates.
  - DistributedLocker: distributed locking for concurrent session access.
  - Workflow: the run/resume boundary adapters drive.
*/
package ports
