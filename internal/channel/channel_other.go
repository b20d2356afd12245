//go:build !windows

package channel

import "errors"

// ErrUnsupported is returned on platforms without named shared memory
// support. The block accessors and liveness logic remain usable over a
// plain buffer for tooling and tests.
var ErrUnsupported = errors.New("shared surface channel requires windows")

// Create is unavailable off windows.
func Create(name string) (*Producer, error) {
	return nil, ErrUnsupported
}

// Open is unavailable off windows.
func Open(name string) (*Consumer, error) {
	return nil, ErrUnsupported
}
