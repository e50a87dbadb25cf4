package big

import "github.com/pkg/errors"

// Error kinds. Every error surfaced by this package wraps one of these
// sentinels, so callers can classify a failure with errors.Is regardless
// of which format or component raised it.
var (
	// ErrFormat covers magic mismatches, bad fields, invariant
	// violations, and truncated sections.
	ErrFormat = errors.New("big: format error")

	// ErrEncryption covers a bad Gearbox marker, an oversize key, a
	// nonsensical marker offset, or a read crossing the encryption
	// boundary.
	ErrEncryption = errors.New("big: encryption error")

	// ErrIntegrity covers a CRC32 mismatch on HW2 extraction.
	ErrIntegrity = errors.New("big: integrity error")

	// ErrIO wraps an underlying read/write/seek failure.
	ErrIO = errors.New("big: I/O error")

	// ErrValue is raised when the format detector exhausts every
	// candidate format.
	ErrValue = errors.New("big: value error")
)

func formatErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrFormat, format, args...)
}

func encryptionErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrEncryption, format, args...)
}

func integrityErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrIntegrity, format, args...)
}

func ioErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrIO, format, args...)
}

func valueErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValue, format, args...)
}
