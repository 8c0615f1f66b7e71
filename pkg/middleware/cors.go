package middleware

import (
	"net/http"

	"democrm-backend/pkg/config"

	"github.com/go-chi/cors"
)

// CORS 创建CORS中间件
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
			"Cache-Control",
		},
		ExposedHeaders: []string{
			"Retry-After",
		},
		MaxAge: 300, // 5分钟
	}

	// 会话通过 cookie 传递，只有明确列出的来源才允许携带凭据
	if len(cfg.AllowedOrigins) > 0 && !contains(cfg.AllowedOrigins, "*") {
		corsOptions.AllowCredentials = true
	} else {
		corsOptions.AllowedOrigins = []string{"*"}
	}

	return cors.Handler(corsOptions)
}

// contains 检查切片是否包含指定的字符串
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
