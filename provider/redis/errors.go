package redis

import "errors"

var (
	ErrEmptyConnectionString = errors.New("redis: empty connection string")
	ErrParseConnectionString = errors.New("redis: failed to parse connection string")
	ErrConnectionFailed      = errors.New("redis: failed to establish connection")
)
