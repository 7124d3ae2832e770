// Package domain defines the core business entities for caseflow.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - InfoPack: The immutable unit of data exchanged between modules
//   - DocumentRecord: An uploaded artifact and its pipeline stage
//   - Session: Encrypted per-user provider credentials
//   - ModuleDescriptor / ActionDescriptor: Hub registration contracts
//   - Error: The classified error taxonomy shared by every component
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
