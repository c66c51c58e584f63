package services

import (
	"io"
	"strings"
)

// captureWriter — дублирующий sink: один Write уходит и в живой транспорт,
// и в буфер. В буфер попадает ровно то, что реально записано в dst.
type captureWriter struct {
	dst io.Writer
	buf strings.Builder
}

func newCaptureWriter(dst io.Writer) *captureWriter {
	return &captureWriter{dst: dst}
}

func (w *captureWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if n > 0 {
		w.buf.Write(p[:n])
	}
	return n, err
}

func (w *captureWriter) String() string {
	return w.buf.String()
}
