package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import "errors"

// ErrMalformedRename indicates a RENAME TABLE statement without source/target pairs.
var ErrMalformedRename = errors.New("malformed RENAME TABLE statement")
