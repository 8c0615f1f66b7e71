package handlers

import (
	"net/http"
	"time"

	"democrm-backend/pkg/config"
	"democrm-backend/pkg/database"
	"democrm-backend/pkg/events"
	"democrm-backend/pkg/utils"
)

// SystemHandler 健康检查与实时事件
type SystemHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	hub    *events.Hub
}

func NewSystemHandler(cfg *config.Config, db database.DatabaseInterface, hub *events.Hub) *SystemHandler {
	return &SystemHandler{config: cfg, db: db, hub: hub}
}

// HealthCheck 健康检查
func (h *SystemHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	// 测试数据库连接
	dbStatus := "healthy"
	if err := h.db.HealthCheck(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"service":     "democrm-backend",
		"version":     "1.0.0",
		"environment": h.config.Environment,
		"database":    h.databaseType(),
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
		"status":      "healthy",
	})
}

// databaseType 获取数据库类型
func (h *SystemHandler) databaseType() string {
	if h.config.UseLocalDB {
		return "memory"
	}
	if h.config.PostgresDSN != "" {
		return "postgresql"
	}
	return "unknown"
}

// Events upgrades to the caller's invalidation stream
func (h *SystemHandler) Events(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	h.hub.ServeWS(w, r, user.ID)
}
