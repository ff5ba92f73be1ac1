package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidStyle = errors.New("invalid style")
	ErrInvalidInput = errors.New("invalid input")
)
