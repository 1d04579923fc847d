package errors

import "errors"

var ErrNotFound = errors.New("otp challenge not found")
