package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Factory creates byte and step progress bars. Bars are silent when disabled
// or when stderr is not a terminal.
type Factory struct {
	visible bool
}

// NewFactory returns a Factory that renders bars only on an interactive stderr.
func NewFactory(disabled bool) Factory {
	return Factory{visible: !disabled && term.IsTerminal(int(os.Stderr.Fd()))}
}

// Silent returns a Factory whose bars never render.
func Silent() Factory {
	return Factory{}
}

// Visible reports whether bars from this factory are rendered.
func (f Factory) Visible() bool {
	return f.visible
}

// Bytes returns a bar that counts size bytes.
func (f Factory) Bytes(size int64, description string) *progressbar.ProgressBar {
	if f.visible {
		return progressbar.DefaultBytes(size, description)
	}
	return progressbar.DefaultBytesSilent(size, description)
}

// Steps returns a bar that counts n discrete steps.
func (f Factory) Steps(n int64, description string) *progressbar.ProgressBar {
	if f.visible {
		return progressbar.Default(n, description)
	}
	return progressbar.DefaultSilent(n, description)
}

// ReadSeeker is a wrapper around io.ReadSeeker that updates a progress bar.
type ReadSeeker struct {
	io.ReadSeeker
	bar *progressbar.ProgressBar
}

// NewReadSeeker returns a new ReadSeeker with the given bar.
func NewReadSeeker(r io.ReadSeeker, bar *progressbar.ProgressBar) *ReadSeeker {
	return &ReadSeeker{
		ReadSeeker: r,
		bar:        bar,
	}
}

// Seek rewinds the bar when the underlying reader is rewound to the start. The
// SDK reads the body once to sign it and again to send it.
func (r *ReadSeeker) Seek(offset int64, whence int) (int64, error) {
	n, err := r.ReadSeeker.Seek(offset, whence)
	if err == nil && n == 0 {
		r.bar.Reset()
	}
	return n, err
}

func (r *ReadSeeker) Read(p []byte) (n int, err error) {
	n, err = r.ReadSeeker.Read(p)
	_ = r.bar.Add(n)
	return
}

// Finish completes the bar.
func (r *ReadSeeker) Finish() error {
	return r.bar.Finish()
}
