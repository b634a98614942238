// Package teereader mirrors the bytes read from a connection into a writer,
// and reports what happened once the connection is closed.
package teereader

import (
	"errors"
	"io"
)

type Stats struct {
	BytesRead int64
	ReadErr   error
	WriteErr  error
}

type TeeReader struct {
	src     io.ReadCloser
	dest    io.Writer
	onClose func(stats Stats)
	stats   Stats
}

// New returns a reader mirroring src into dest. A failing dest stops the
// mirroring without interrupting reads.
func New(src io.ReadCloser, dest io.Writer, onClose func(stats Stats)) *TeeReader {
	return &TeeReader{src: src, dest: dest, onClose: onClose}
}

func (t *TeeReader) Read(p []byte) (int, error) {
	n, readErr := t.src.Read(p)
	t.stats.BytesRead += int64(n)

	if readErr != nil && !errors.Is(readErr, io.EOF) && t.stats.ReadErr == nil {
		t.stats.ReadErr = readErr
	}

	if n > 0 && t.stats.WriteErr == nil {
		if _, writeErr := t.dest.Write(p[:n]); writeErr != nil {
			t.stats.WriteErr = writeErr
		}
	}

	return n, readErr
}

func (t *TeeReader) Close() error {
	err := t.src.Close()
	t.onClose(t.stats)
	return err
}
