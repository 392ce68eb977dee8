package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	ErrReleaseNotFound      = fmt.Errorf("release %w", ErrNotFound)
	ErrAppNamespaceNotFound = fmt.Errorf("app namespace %w", ErrNotFound)
)
