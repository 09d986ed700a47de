package nibble

import "errors"

var errEmptyCompact = errors.New("nibble: empty compact encoding")
