// Package codecerr defines the error conditions shared by the bitstream
// parsers: stream exhaustion, malformed syntax and unsupported features.
package codecerr

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEndOfStream is reported when a reader runs past the end of a NAL
	// unit or frame buffer.
	ErrEndOfStream = errors.New("unexpected end of stream")

	// ErrMalformed is the sentinel matched by every SyntaxError.
	ErrMalformed = errors.New("malformed bitstream")

	// ErrUnsupported marks syntax that is valid but not implemented.
	ErrUnsupported = errors.New("unsupported feature")
)

// SyntaxError reports an impossible value for a named syntax element.
type SyntaxError struct {
	Element string
	Value   int64
	Msg     string
}

func (e *SyntaxError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("malformed bitstream: %s = %d", e.Element, e.Value)
	}
	return fmt.Sprintf("malformed bitstream: %s = %d: %s", e.Element, e.Value, e.Msg)
}

// Unwrap lets errors.Is match ErrMalformed.
func (e *SyntaxError) Unwrap() error { return ErrMalformed }

// Malformed returns a SyntaxError for element with the offending value.
func Malformed(element string, value int64, format string, args ...any) error {
	msg := ""
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return errors.WithStack(&SyntaxError{Element: element, Value: value, Msg: msg})
}

// CheckRange returns a SyntaxError when v is outside [lo, hi].
func CheckRange(element string, v, lo, hi int64) error {
	if v < lo || v > hi {
		return Malformed(element, v, "out of range [%d, %d]", lo, hi)
	}
	return nil
}

// Unsupported wraps ErrUnsupported with the feature name.
func Unsupported(feature string) error {
	return errors.Wrap(ErrUnsupported, feature)
}

// Unsupportedf is Unsupported with formatting.
func Unsupportedf(format string, args ...any) error {
	return errors.Wrapf(ErrUnsupported, format, args...)
}
