// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package sql

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/gweizero/engine/pkg/logger/log"
)

var (
	defaultDB   *gorm.DB
	defaultLock = &sync.RWMutex{}
)

var errInvalidConfig = fmt.Errorf("database config invalid")

type DatabaseConfig struct {
	URL         string
	SSLMode     string
	LogMode     bool
	MaxIdleConn int
	MaxOpenConn int
}

func (d DatabaseConfig) Validate() error {
	if d.URL == "" {
		return errInvalidConfig
	}
	return nil
}

// DSN builds the postgres DSN, appending sslmode when PGSSLMODE is set and
// the URL does not already carry one.
func (d DatabaseConfig) DSN() string {
	dsn := d.URL
	if d.SSLMode != "" && !strings.Contains(dsn, "sslmode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = dsn + sep + "sslmode=" + d.SSLMode
	}
	return dsn
}

// InitDefault opens the default connection pool. Repeated calls return the
// existing pool.
func InitDefault(conf DatabaseConfig) (*gorm.DB, error) {
	if db := GetDefaultDB(); db != nil {
		return db, nil
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	logMode := logger.Silent
	if conf.LogMode {
		logMode = logger.Info
	}

	gormDB, err := gorm.Open(postgres.Open(conf.DSN()), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if conf.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(conf.MaxIdleConn)
	} else {
		sqlDB.SetMaxIdleConns(10)
	}
	if conf.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(conf.MaxOpenConn)
	} else {
		sqlDB.SetMaxOpenConns(40)
	}

	// Refresh connections periodically so the pool does not keep pointing
	// at an old node after failover.
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(2 * time.Minute)

	log.Infof("Configured database connection pool: MaxIdleConn=%d, MaxOpenConn=%d",
		conf.MaxIdleConn, conf.MaxOpenConn)

	defaultLock.Lock()
	defer defaultLock.Unlock()
	defaultDB = gormDB
	return gormDB, nil
}

// SetDefaultDB replaces the default pool. Test hook.
func SetDefaultDB(db *gorm.DB) {
	defaultLock.Lock()
	defer defaultLock.Unlock()
	defaultDB = db
}

func GetDefaultDB() *gorm.DB {
	defaultLock.RLock()
	defer defaultLock.RUnlock()
	return defaultDB
}
