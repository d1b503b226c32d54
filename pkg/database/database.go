package database

import (
	"fmt"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/model"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig, mode string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	logLevel := logger.Warn
	if mode == "debug" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")
	return db, nil
}

// Migrate 创建/更新引擎拥有的表；目录表由外部 CRUD 服务维护，这里只保证结构存在
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Program{},
		&model.Course{},
		&model.CourseModule{},
		&model.Lesson{},
		&model.Assessment{},
		&model.AssessmentQuestion{},
		&model.Submission{},
		&model.Progress{},
		&model.Enrollment{},
		&model.CourseProgressEntry{},
		&model.Certificate{},
	)
	if err != nil {
		return err
	}

	log.Println("Database migration completed")
	return nil
}
