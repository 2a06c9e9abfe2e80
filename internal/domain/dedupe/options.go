package dedupe

// Option applies a configuration option to the Tracker.
type Option func(*options)

type options struct {
	sizeHint int
}

// WithSizeHint preallocates room for n claims. Non-positive values are ignored.
func WithSizeHint(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sizeHint = n
		}
	}
}
