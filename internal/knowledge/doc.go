// Package knowledge defines the shared data contracts of the vaultd
// pipeline: notes, tags, and relations, with their enums and invariants.
//
// Persistence of these records is owned by the metadata store; this
// package only defines the value types and their validation rules.
package knowledge
