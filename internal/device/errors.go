package device

import "errors"

var errBadBufSize = errors.New("device: buffer must be exactly one block")
