package common

import "errors"

// Общие ошибки хранилища.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrFieldMismatch = errors.New("field count mismatch")
)
