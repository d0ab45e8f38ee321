package namelist

import "fmt"

// FormatError reports malformed namelist syntax. Parsing stops at the first
// offending construct; a partially parsed document is never returned.
type FormatError struct {
	Path   string
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("namelist format error at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("namelist format error in %s at line %d: %s", e.Path, e.Line, e.Reason)
}

// TargetNotFoundError reports a Change operation naming a (block, instance)
// that does not exist in the target document.
type TargetNotFoundError struct {
	File     string
	Block    string
	Instance int
	Param    string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("namelist patch target not found: file=%s block=%s instance=%d param=%s",
		e.File, e.Block, e.Instance, e.Param)
}
