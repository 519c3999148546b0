// Package core defines the shared language of devbench.
//
// This package contains:
//   - The phase table (Phase, with its codes and labels)
//   - The categorical vocabularies (CalcMethod, Classification)
//   - Records and field names (Record, the identifier and metric fields)
//   - Schema documents (Schema, Property)
//   - Typed errors shared by every layer
//
// The Golden Rule: pkg/core imports only the standard library.
// All other packages depend on core, not the reverse.
package core
