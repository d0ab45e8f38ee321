// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so setup validation works in installed
// binaries and library consumers without schema files being present on disk.
package schemasassets

import _ "embed"

// CaseSetupSchema is the embedded case-setup JSON schema.
//
//go:embed case-setup.schema.json
var CaseSetupSchema []byte
