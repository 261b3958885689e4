package tracker

import "errors"

// ErrInvalidKind indicates a log append named neither DDL nor DML.
var ErrInvalidKind = errors.New("invalid statement kind")

// ErrExportFailed indicates the definition of a table could not be exported
// while creating a version.
var ErrExportFailed = errors.New("exporting table definition failed")
