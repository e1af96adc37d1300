// Package decoder adapts line-oriented scanner hardware to the scan pipeline
package decoder

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// MaxLineSize bounds a single decoded line; longer lines end Run with bufio.ErrTooLong
const MaxLineSize = 1024 * 1024

// LineReader reads one decoded string per line, as emitted by keyboard-wedge
// and serial barcode scanners.
type LineReader struct {
	r    io.Reader
	sink func(code string)
}

// NewLineReader creates a reader that passes each non-empty line to sink
func NewLineReader(r io.Reader, sink func(code string)) *LineReader {
	return &LineReader{r: r, sink: sink}
}

// Run reads until EOF, a read error, or ctx cancellation. EOF is not an error.
// Cancellation is observed between lines; closing the underlying reader unblocks a pending read.
func (l *LineReader) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(l.r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), MaxLineSize)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		code := strings.TrimSpace(scanner.Text())
		if code == "" {
			continue
		}
		logrus.WithField("code", code).Debug("decoder line read")
		l.sink(code)
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return ctx.Err()
}
