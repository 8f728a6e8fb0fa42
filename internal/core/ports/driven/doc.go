// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Normaliser: Transforms file bytes into typed content blocks
//   - NormaliserRegistry: Selects the appropriate normaliser
//   - HybridIndex: Vector and keyword search over indexed chunks
//   - DocumentStore: Document registry and ingestion summaries
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Without it, nothing new can be indexed and queries fall back to keyword search.
//   - VisionService: Without it, escalated blocks are downgraded to cheap extraction.
//   - CompletionService: Without it, queries return retrieved context without an answer.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
