// Package dao 实现数据访问层
package dao

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haierkeys/psnotes-service/internal/model"
	"github.com/haierkeys/psnotes-service/pkg/util"

	"github.com/glebarez/sqlite"
	"github.com/haierkeys/gormTracing"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

// DatabaseConfig 数据库连接配置
type DatabaseConfig struct {
	// Type sqlite, mysql, postgres
	Type     string
	Path     string
	UserName string
	Password string
	// Host host:port
	Host        string
	Name        string
	TablePrefix string
	AutoMigrate bool
	Charset     string
	ParseTime   bool
	// Replicas 只读副本：sqlite 为文件路径，mysql/postgres 为 host:port
	Replicas        []string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime string
	ConnMaxIdleTime string
	// Tracing 是否为 SQL 调用创建 opentracing span
	Tracing bool
	RunMode string
}

// Dao 持有数据库连接
type Dao struct {
	Db     *gorm.DB
	logger *zap.Logger
}

// New 创建 Dao
func New(db *gorm.DB, lg *zap.Logger) *Dao {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Dao{Db: db, logger: lg}
}

// DB 返回底层 gorm 连接
func (d *Dao) DB() *gorm.DB {
	return d.Db
}

// NewDBEngineWithConfig 根据配置打开数据库，配置连接池、读写分离与追踪，并按需迁移表结构
func NewDBEngineWithConfig(c DatabaseConfig, lg *zap.Logger) (*gorm.DB, error) {
	if lg == nil {
		lg = zap.NewNop()
	}

	dialector, err := openDialector(c, c.Host, c.Path)
	if err != nil {
		return nil, err
	}

	logMode := logger.Silent
	if c.RunMode == "debug" {
		logMode = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   c.TablePrefix, // 表名前缀，`Note` 的表名为 `t_note`
			SingularTable: true,          // 使用单数表名
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", c.Type)
	}

	// 获取通用数据库对象 sql.DB，设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	maxLifetime := util.DurationOr(c.ConnMaxLifetime, 30*time.Minute)
	maxIdleTime := util.DurationOr(c.ConnMaxIdleTime, 10*time.Minute)

	if c.Type == "sqlite" || c.Type == "" {
		// SQLite 只允许单写连接
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	}
	sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(maxLifetime)
	sqlDB.SetConnMaxIdleTime(maxIdleTime)

	if len(c.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(c.Replicas))
		for _, r := range c.Replicas {
			d, err := openDialector(c, r, r)
			if err != nil {
				return nil, errors.Wrapf(err, "replica %s", r)
			}
			replicas = append(replicas, d)
		}
		resolver := dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}).
			SetMaxIdleConns(c.MaxIdleConns).
			SetMaxOpenConns(c.MaxOpenConns).
			SetConnMaxLifetime(maxLifetime).
			SetConnMaxIdleTime(maxIdleTime)
		if err := db.Use(resolver); err != nil {
			return nil, errors.Wrap(err, "register read replicas")
		}
		lg.Info("database read replicas registered", zap.Int("count", len(replicas)))
	}

	if c.Tracing {
		if err := db.Use(&gormTracing.OpentracingPlugin{}); err != nil {
			lg.Warn("gorm tracing plugin failed", zap.Error(err))
		}
	}

	if c.AutoMigrate {
		if err := model.AutoMigrate(db, ""); err != nil {
			return nil, errors.Wrap(err, "auto migrate")
		}
	}

	return db, nil
}

// openDialector 构造方言，host 与 path 分别用于网络数据库与 sqlite
func openDialector(c DatabaseConfig, host, path string) (gorm.Dialector, error) {
	switch c.Type {
	case "mysql":
		charset := c.Charset
		if charset == "" {
			charset = "utf8mb4"
		}
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=%s&parseTime=%t&loc=UTC",
			c.UserName,
			c.Password,
			host,
			c.Name,
			charset,
			c.ParseTime,
		)), nil
	case "postgres":
		h, port, err := net.SplitHostPort(host)
		if err != nil {
			h, port = host, "5432"
		}
		return postgres.Open(fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			h, port, c.UserName, c.Password, c.Name,
		)), nil
	case "sqlite", "":
		if path != ":memory:" && !strings.HasPrefix(path, "file:") {
			if dir := filepath.Dir(path); dir != "" {
				if err := os.MkdirAll(dir, 0754); err != nil {
					return nil, errors.Wrap(err, "create sqlite dir")
				}
			}
		}
		return sqlite.Open(path), nil
	}
	return nil, fmt.Errorf("unsupported database type %q", c.Type)
}
