package gateway

import "errors"

// ErrScriptFailed indicates a statement of a script failed to execute.
var ErrScriptFailed = errors.New("script execution failed")
