// Package connectors holds provider integrations used on the primary
// extraction path. Each provider package exports a driven.ProviderExtractor
// that reads a document straight from the owner's cloud storage using the
// access token handed over by the session manager.
//
// Providers are registered with the pipeline at startup.
package connectors
