// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - EventBus: publish/subscribe fabric between modules
//   - DocumentStore, ArtifactStore: document records and raw bytes
//   - SessionStore, Cipher, TokenRefresher: encrypted provider sessions
//   - ExtractorRegistry, EnricherPipeline, Classifier: local extraction path
//   - SchedulerStore: background task state
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - ProviderExtractor: primary extraction. Without it every document takes the local path.
//   - DeliveryFailureStore: without it failed deliveries are only logged.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or extractor package
package driven
