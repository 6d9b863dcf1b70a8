package digest

import "errors"

// ErrUnknownAlgorithm is returned by New for unsupported checksum names.
var ErrUnknownAlgorithm = errors.New("unknown checksum algorithm")
