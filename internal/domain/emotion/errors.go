package emotion

import "errors"

// ErrScoreOutOfRange is returned by Scores.Validate.
var ErrScoreOutOfRange = errors.New("expression score out of range")
