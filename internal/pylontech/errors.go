package pylontech

import "errors"

// ErrTruncated is returned by the Decode* functions when a frame's data is shorter than
// the payload its CAN ID requires.
var ErrTruncated = errors.New("pylontech: truncated frame")
