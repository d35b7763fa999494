package contract

import "errors"

// ErrSchemaViolation marks model output that failed structural checks.
// The planner wraps it around every parse and validation rejection.
var ErrSchemaViolation = errors.New("model output violates schema")
