package big

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Detect identifies the concrete container format backing r, trying each
// known format from most to least distinctive: HWRM (Gearbox-wrapped,
// footer-verified), then HW2, then HW1-Classic, then HW1. HWRM is accepted
// once its Gearbox footer parses with the HWRM marker, HW2 once its archive
// header parses, and HW1-Classic/HW1 once the header and the first TOC
// entry parse and validate under that layout; rejected candidates are
// skipped silently and logged at debug level.
func Detect(r io.ReadSeeker) (Format, error) {
	candidates := []struct {
		format Format
		check  func(io.ReadSeeker) bool
	}{
		{FormatHWRM, checkHWRMFormat},
		{FormatHW2, checkHW2Format},
		{FormatHW1Classic, func(r io.ReadSeeker) bool { return checkHW1Format(r, true) }},
		{FormatHW1, func(r io.ReadSeeker) bool { return checkHW1Format(r, false) }},
	}

	for _, c := range candidates {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return FormatUnknown, ioErrorf("detect: seeking to start: %v", err)
		}
		if c.check(r) {
			logrus.WithField("format", c.format).Debug("big: format detected")
			return c.format, nil
		}
		logrus.WithField("format", c.format).Debug("big: format candidate rejected")
	}

	return FormatUnknown, valueErrorf("unable to determine archive format")
}

// Open detects f's format and returns the matching Archive. f must
// satisfy randomAccessFile, which is true of *os.File.
func Open(f randomAccessFile) (Archive, error) {
	format, err := Detect(f)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, ioErrorf("open: seeking to start: %v", err)
	}

	switch format {
	case FormatHWRM:
		return NewHWRM(f)
	case FormatHW2:
		return NewHW2(f)
	case FormatHW1Classic:
		return NewHW1Classic(f)
	case FormatHW1:
		return NewHW1(f)
	default:
		return nil, valueErrorf("unable to determine archive format")
	}
}
