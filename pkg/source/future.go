package source

import "context"

// Future is the single-shot result of an asynchronous load.
type Future struct {
	done chan struct{}
	img  *Image
	err  error
}

// LoadAsync opens path in the background. The returned Future completes
// exactly once; if ctx is cancelled first, it completes with ctx.Err().
func LoadAsync(ctx context.Context, path string) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		img, err := Open(path)
		if cerr := ctx.Err(); cerr != nil {
			f.err = cerr
			return
		}
		f.img, f.err = img, err
	}()
	return f
}

// Resolved returns a Future that has already completed.
func Resolved(img *Image, err error) *Future {
	f := &Future{done: make(chan struct{}), img: img, err: err}
	close(f.done)
	return f
}

// Done is closed when the load has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the load finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) (*Image, error) {
	select {
	case <-f.done:
		return f.img, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
