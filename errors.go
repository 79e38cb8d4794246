package gofat

import fatErrors "github.com/dargueta/gofat/errors"

// Re-exported so callers working with a *FatFs rarely need to import the
// errors subpackage directly, mirroring how the teacher surfaces its own
// error taxonomy at the root package.
type (
	DriverError = fatErrors.DriverError
	ErrorKind   = fatErrors.Kind
)

const (
	ErrNotFat       = fatErrors.NotFat
	ErrUnsupported  = fatErrors.Unsupported
	ErrCorrupt      = fatErrors.Corrupt
	ErrIO           = fatErrors.Io
	ErrNoSpace      = fatErrors.NoSpace
	ErrNameTaken    = fatErrors.NameTaken
	ErrNotFound     = fatErrors.NotFound
	ErrNotEmpty     = fatErrors.NotEmpty
	ErrIsDirectory  = fatErrors.IsDirectory
	ErrNotDirectory = fatErrors.NotDirectory
	ErrInvalidArg   = fatErrors.InvalidArg
	ErrNameTooLong  = fatErrors.NameTooLong
	ErrBadName      = fatErrors.BadName
	ErrReadOnly     = fatErrors.ReadOnly
	ErrNotAllowed   = fatErrors.NotAllowed
	ErrBusy         = fatErrors.Busy
)
