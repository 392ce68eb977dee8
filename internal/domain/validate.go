package domain

import (
	"fmt"
	"regexp"
)

// nameRegex 约束 appId / cluster / namespace：字母、数字、_、-、.，不允许出现 watch key 分隔符。
var nameRegex = regexp.MustCompile(`^[0-9a-zA-Z_.-]+$`)

const maxNameLength = 128

// ValidateName 校验客户端传入的标识符。
func ValidateName(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	if len(value) > maxNameLength {
		return fmt.Errorf("%w: %s is longer than %d characters", ErrInvalidInput, field, maxNameLength)
	}
	if !nameRegex.MatchString(value) {
		return fmt.Errorf("%w: %s %q contains invalid characters", ErrInvalidInput, field, value)
	}
	return nil
}

// ValidateOptionalName 与 ValidateName 相同，但允许空值。
func ValidateOptionalName(field, value string) error {
	if value == "" {
		return nil
	}
	return ValidateName(field, value)
}
