// Package runtime executes user-supplied code in ephemeral containers.
//
// One ExecuteCode call materializes the request's source files in a
// project staging directory, creates a resource-capped and
// network-isolated container over the engine client, demultiplexes its
// combined output stream, races the container's exit against a
// wall-clock timeout, and assembles a structured result. Public
// operations never return errors; failures are folded into result
// values so the boundary layer can always produce a response.
//
// Concurrency: executions are admitted through a weighted semaphore
// sized by configuration, executions of the same project are serialized
// with a per-project lock, and the active-container table is guarded
// for concurrent ActiveContainers/StopContainer calls.
package runtime
