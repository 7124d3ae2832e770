// Package extractors provides the local extraction path: implementations of
// driven.Extractor for the document formats a tenant typically uploads, and a
// registry that selects one by MIME type.
//
// Extractors are registered with the Registry at startup.
package extractors
