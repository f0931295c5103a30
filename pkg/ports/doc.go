/*
Package ports defines the driven ports (interfaces) of the Cascade engine.

These interfaces decouple the runtime from concrete providers, stores and
operator interfaces, so the same engine runs against Redis, a directory of
markdown files, or an in-memory tree in tests.

# Key Interfaces

  - TreeStore: Reads prompt trees and applies the engine's writes.
  - GenerationProvider: Calls the language model.
  - CostLedger and TraceRecorder: Best-effort accounting and telemetry.
  - Confirmer and QuestionAsker: The operator side of previews and questions.
  - DistributedLocker: Serialises runs across replicas.
*/
package ports
