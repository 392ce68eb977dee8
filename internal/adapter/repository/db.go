package repository

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func OpenDB(dsn string) (*gorm.DB, error) {
	return Open(postgres.Open(dsn))
}

// Open 使用任意 gorm 方言打开数据库并迁移表结构，测试中传入 sqlite。
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&AppNamespaceModel{},
		&ReleaseModel{},
		&ReleaseMessageModel{},
		&GrayReleaseRuleModel{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
