package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"democrm-backend/pkg/config"
	"democrm-backend/pkg/utils"
)

// Recovery 恢复中间件，处理panic并返回统一的错误响应
func Recovery(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				// let net/http abort the connection as it would without us
				if err == http.ErrAbortHandler {
					panic(err)
				}

				stack := debug.Stack()
				fmt.Printf("❌ PANIC: %s %s: %v\n", r.Method, r.URL.Path, err)
				fmt.Printf("📍 Stack trace:\n%s\n", stack)

				if cfg.IsDevelopment() {
					utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
						"INTERNAL_SERVER_ERROR",
						fmt.Sprintf("Internal server error: %v", err),
						string(stack))
					return
				}
				utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
