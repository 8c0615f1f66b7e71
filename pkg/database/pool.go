package database

import (
	"fmt"
	"sync"
	"time"
)

// DatabasePool 数据库连接池
type DatabasePool struct {
	instance DatabaseInterface
	config   DatabaseConfig
	mu       sync.RWMutex
	lastUsed time.Time
}

var (
	globalPool *DatabasePool
	poolMutex  sync.Mutex
)

// GetDatabase 获取数据库连接（单例模式 + 连接池）
//
// On serverless platforms one process serves many warm invocations; the
// store is reused across them until it goes stale or fails a health check.
func GetDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil || shouldRecreateConnection(globalPool, config) {
		fmt.Printf("🔄 Creating new database connection pool\n")

		// 关闭旧连接（如果存在）
		if globalPool != nil && globalPool.instance != nil {
			globalPool.instance.Close()
		}

		instance, err := NewDatabase(config)
		if err != nil {
			globalPool = nil
			return nil, err
		}
		globalPool = &DatabasePool{
			instance: instance,
			config:   config,
			lastUsed: time.Now(),
		}
	} else {
		globalPool.mu.Lock()
		globalPool.lastUsed = time.Now()
		globalPool.mu.Unlock()

		if config.Debug {
			fmt.Printf("♻️  Reusing existing database connection\n")
		}
	}

	return globalPool.instance, nil
}

// shouldRecreateConnection 判断是否需要重新创建连接
func shouldRecreateConnection(pool *DatabasePool, newConfig DatabaseConfig) bool {
	if pool == nil || pool.instance == nil {
		return true
	}

	if pool.config != newConfig {
		fmt.Printf("🔄 Database configuration changed, recreating connection\n")
		return true
	}

	// 检查连接是否过期（30分钟）
	pool.mu.RLock()
	expired := time.Since(pool.lastUsed) > 30*time.Minute
	pool.mu.RUnlock()

	// the in-memory store holds all data; never drop it
	if expired && !newConfig.UseLocalDB {
		fmt.Printf("⏰ Database connection expired, recreating\n")
		return true
	}

	if err := pool.instance.HealthCheck(); err != nil {
		fmt.Printf("❌ Database health check failed, recreating: %v\n", err)
		return true
	}

	return false
}

// CloseDatabase 关闭并释放全局连接
func CloseDatabase() {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil {
		return
	}
	if globalPool.instance != nil {
		globalPool.instance.Close()
	}
	globalPool = nil
}

// GetConnectionStats 获取连接池统计信息
func GetConnectionStats() map[string]interface{} {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil {
		return map[string]interface{}{
			"status":    "no_connection",
			"last_used": nil,
		}
	}

	globalPool.mu.RLock()
	lastUsed := globalPool.lastUsed
	globalPool.mu.RUnlock()

	return map[string]interface{}{
		"status":    "connected",
		"last_used": lastUsed.Format(time.RFC3339),
		"age":       time.Since(lastUsed).String(),
		"config": map[string]interface{}{
			"use_local_db": globalPool.config.UseLocalDB,
			"has_postgres": globalPool.config.PostgresDSN != "",
		},
	}
}
