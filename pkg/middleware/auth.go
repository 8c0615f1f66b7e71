package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"democrm-backend/pkg/models"
	"democrm-backend/pkg/utils"
)

// ContextKey 用于在context中存储用户信息的键
type ContextKey string

const (
	UserContextKey ContextKey = "user"

	// SessionCookieName 浏览器会话 cookie 名称
	SessionCookieName = "session"
)

// tokenFromRequest 依次从 Authorization 头和 session cookie 中读取令牌
func tokenFromRequest(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return "", fmt.Errorf("invalid authorization header format")
		}
		return tokenString, nil
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	return "", fmt.Errorf("missing session")
}

// AuthMiddleware JWT认证中间件
func AuthMiddleware(jwtService *utils.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := tokenFromRequest(r)
			if err != nil {
				utils.WriteUnauthorizedResponse(w, "Authentication required")
				return
			}

			// 只接受 access token
			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				fmt.Printf("❌ Auth middleware: %v\n", err)
				utils.WriteUnauthorizedResponse(w, "Invalid or expired session")
				return
			}

			recordCaller(r, claims.UserID)
			user := &models.User{ID: claims.UserID}
			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthMiddleware 可选的认证中间件（不强制要求认证）
func OptionalAuthMiddleware(jwtService *utils.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := tokenFromRequest(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			// 如果token无效，继续处理请求（不返回错误）
			if claims, err := jwtService.ValidateAccessToken(tokenString); err == nil {
				user := &models.User{ID: claims.UserID}
				ctx := context.WithValue(r.Context(), UserContextKey, user)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext 从context中获取用户信息
func GetUserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok
}

// RequireUser 要求用户必须已认证的辅助函数
func RequireUser(ctx context.Context) (*models.User, error) {
	user, ok := GetUserFromContext(ctx)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not authenticated")
	}
	return user, nil
}

// WithUser 将用户写入 context（供测试与内部调用使用）
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}
