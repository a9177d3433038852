package eventloop

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithStorage seeds Loop.Storage before Run is called.
func WithStorage(storage any) Option {
	return func(l *Loop) { l.Storage = storage }
}

// WithOverloadHandler installs a callback invoked when Submit's queue
// depth crosses the high-water mark, so an operator can log or shed
// load rather than let memory grow unbounded.
func WithOverloadHandler(fn func(pending int)) Option {
	return func(l *Loop) { l.OnOverload = fn }
}

// NewWithOptions is New plus functional options, for callers that want
// to set Storage or OnOverload before the first Run.
func NewWithOptions(opts ...Option) (*Loop, error) {
	l, err := New()
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}
