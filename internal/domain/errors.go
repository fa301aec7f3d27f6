package domain

import "fmt"

// ConfigurationError reports malformed run inputs (bad step ranges, missing
// required settings). It is raised before any I/O happens.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Msg }

// DataNotFoundError reports a referenced file or archive that does not exist
// or cannot be opened. Always fatal for the run.
type DataNotFoundError struct {
	Path string
	Err  error
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("data not found: %s: %v", e.Path, e.Err)
}

func (e *DataNotFoundError) Unwrap() error { return e.Err }

// AlignmentError reports that forecast and truth share no common coordinate
// values after an inner join, or that their spatial layouts are incompatible.
type AlignmentError struct {
	Msg string
}

func (e *AlignmentError) Error() string { return "alignment: " + e.Msg }
