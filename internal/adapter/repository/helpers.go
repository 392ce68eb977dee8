package repository

import (
	"errors"

	"gorm.io/gorm"
)

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// lowerEquals 生成不区分大小写的等值条件，postgres 与 sqlite 均支持 LOWER。
func lowerEquals(column string) string {
	return "LOWER(" + column + ") = LOWER(?)"
}
