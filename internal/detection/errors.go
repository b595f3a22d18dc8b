package detection

import "errors"

// ErrEmptyImage is returned when a detector receives an image with zero
// area. Malformed input is the only error the detectors surface; finding
// nothing is a normal empty result.
var ErrEmptyImage = errors.New("detection: image has zero area")
