package speech

import "errors"

// ErrEmptyText rejects Speak calls with nothing to say.
var ErrEmptyText = errors.New("nothing to speak")
