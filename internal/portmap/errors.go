package portmap

import "errors"

// ErrExhaustedRange means the scan reached the end of the port range before
// finding the requested number of free ports.
var ErrExhaustedRange = errors.New("port range exhausted")
