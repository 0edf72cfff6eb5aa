package nodetype

import "errors"

// ErrNoSuchNodeType is returned when a node type name has no registered
// definition.
var ErrNoSuchNodeType = errors.New("nodetype: no such node type")
