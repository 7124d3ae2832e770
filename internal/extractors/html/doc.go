// Package html provides an Extractor implementation for HTML documents.
// It recovers readable text from HTML, stripping tags, scripts and styles
// and decoding entities.
package html
