package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"democrm-backend/pkg/config"

	"github.com/go-chi/chi/v5/middleware"
)

// Logger 创建日志中间件，开启 Debug 时开发环境也记录调用者
func Logger(cfg *config.Config) func(http.Handler) http.Handler {
	if cfg.IsProduction() || cfg.Debug {
		return CustomLogger(cfg)
	}
	return middleware.Logger
}

// requestLog 生产环境的结构化日志行
type requestLog struct {
	Time      string `json:"time"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Duration  string `json:"duration"`
	User      string `json:"user"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// CustomLogger 自定义日志中间件
//
// The caller is only known after AuthMiddleware has run further down the
// chain, so the user is read through a holder placed in the context here.
func CustomLogger(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			holder := &callerHolder{}
			r = r.WithContext(context.WithValue(r.Context(), callerContextKey, holder))

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			userInfo := "anonymous"
			if holder.userID != "" {
				userInfo = holder.userID
			}

			if cfg.IsProduction() {
				logProductionRequest(r, ww, duration, userInfo)
			} else {
				logDevelopmentRequest(r, ww, duration, userInfo)
			}
		})
	}
}

const callerContextKey ContextKey = "caller"

type callerHolder struct {
	userID string
}

// recordCaller hands the authenticated user id back to CustomLogger
func recordCaller(r *http.Request, userID string) {
	if h, ok := r.Context().Value(callerContextKey).(*callerHolder); ok {
		h.userID = userID
	}
}

// logProductionRequest 生产环境日志格式
func logProductionRequest(r *http.Request, ww middleware.WrapResponseWriter, duration time.Duration, userInfo string) {
	line := requestLog{
		Time:      time.Now().Format(time.RFC3339),
		RequestID: middleware.GetReqID(r.Context()),
		Method:    r.Method,
		Path:      r.URL.Path,
		Status:    ww.Status(),
		Duration:  duration.String(),
		User:      userInfo,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if err := json.NewEncoder(os.Stdout).Encode(line); err != nil {
		fmt.Printf("⚠️  failed to write request log: %v\n", err)
	}
}

// logDevelopmentRequest 开发环境日志格式
func logDevelopmentRequest(r *http.Request, ww middleware.WrapResponseWriter, duration time.Duration, userInfo string) {
	statusColor := getStatusColor(ww.Status())
	methodColor := getMethodColor(r.Method)

	fmt.Printf("%s %s %s%s%s %s%d%s %s %s %s\n",
		time.Now().Format("15:04:05"),
		methodColor+r.Method+"\033[0m",
		"\033[36m", // 青色
		r.URL.Path,
		"\033[0m",
		statusColor,
		ww.Status(),
		"\033[0m",
		duration,
		userInfo,
		clientIP(r),
	)
}

// getStatusColor 根据HTTP状态码返回颜色代码
func getStatusColor(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "\033[32m" // 绿色
	case status >= 300 && status < 400:
		return "\033[33m" // 黄色
	case status >= 400 && status < 500:
		return "\033[31m" // 红色
	case status >= 500:
		return "\033[35m" // 紫色
	default:
		return "\033[0m"
	}
}

// getMethodColor 根据HTTP方法返回颜色代码
func getMethodColor(method string) string {
	switch method {
	case http.MethodGet:
		return "\033[34m" // 蓝色
	case http.MethodPost:
		return "\033[32m" // 绿色
	case http.MethodOptions:
		return "\033[37m" // 白色
	default:
		return "\033[0m"
	}
}
