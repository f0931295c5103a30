/*
Package domain contains the core models of the Cascade engine.

It defines prompt trees, variable scopes, generation requests and responses,
post-action results, run state and telemetry records. The package is kept free
of I/O so that every adapter and the runtime can share the same vocabulary.

# Key Entities

  - PromptNode: A unit of prompt configuration inside a hierarchical tree.
  - VariableScope: Append-only mapping of qualified names to values that flows
    from ancestors to descendants during a cascade.
  - ResumeState: The explicit continuation handed back to the executor after a
    question interrupt has been answered.
  - ActionResult: Outcome of post-processing a node's response into tree mutations.
  - CascadeResult: Aggregate report of a whole-subtree run.
*/
package domain
