package digest

import "errors"

// ErrUnknownAlgorithm is returned by New for an unrecognized Algorithm.
var ErrUnknownAlgorithm = errors.New("digest: unknown algorithm")
