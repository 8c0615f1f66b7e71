package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"democrm-backend/pkg/config"
	"democrm-backend/pkg/database"
	"democrm-backend/pkg/mailer"
	"democrm-backend/pkg/middleware"
	"democrm-backend/pkg/models"
	"democrm-backend/pkg/seed"
	"democrm-backend/pkg/utils"
)

const (
	verificationTokenBytes = 32
	verificationTokenTTL   = 24 * time.Hour
	callbackPath           = "/api/auth/callback/email"
)

// AuthHandler 认证处理器（邮件魔法链接登录）
type AuthHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	jwt    *utils.JWTService
	mailer mailer.Mailer
	seeder *seed.Seeder
	now    func() time.Time
}

// NewAuthHandler 创建认证处理器。seeder 为 nil 时新用户不生成演示数据。
func NewAuthHandler(cfg *config.Config, db database.DatabaseInterface, jwtService *utils.JWTService, m mailer.Mailer, seeder *seed.Seeder) *AuthHandler {
	return &AuthHandler{
		config: cfg,
		db:     db,
		jwt:    jwtService,
		mailer: m,
		seeder: seeder,
		now:    time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignIn 发送魔法链接
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req models.SignInRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if err := utils.ValidateStruct(req); err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid email address", err.Error())
		return
	}

	ctx := r.Context()
	now := h.now()

	// 顺带清理过期的令牌
	if n, err := h.db.DeleteExpiredVerificationTokens(ctx, now); err != nil {
		fmt.Printf("⚠️  Failed to purge expired verification tokens: %v\n", err)
	} else if n > 0 {
		fmt.Printf("🧹 Purged %d expired verification tokens\n", n)
	}

	token, err := utils.GenerateURLToken(verificationTokenBytes)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate sign-in token")
		return
	}

	if err := h.db.CreateVerificationToken(ctx, &models.VerificationToken{
		Identifier: req.Email,
		TokenHash:  utils.HashToken(token, h.config.JWTSecret),
		Expires:    now.Add(verificationTokenTTL).UTC(),
	}); err != nil {
		fmt.Printf("❌ Failed to store verification token: %v\n", err)
		utils.WriteInternalServerErrorResponse(w, "Failed to start sign in")
		return
	}

	msg, err := mailer.MagicLinkMessage(req.Email, h.magicLink(r, token, req.Email))
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to build sign-in link")
		return
	}
	if _, err := h.mailer.Send(ctx, msg); err != nil {
		fmt.Printf("❌ Failed to send magic link to %s: %v\n", req.Email, err)
		utils.WriteInternalServerErrorResponse(w, "Failed to send sign-in email")
		return
	}

	fmt.Printf("📧 Magic link sent to %s\n", req.Email)
	utils.WriteSuccessResponse(w, map[string]string{"message": "Check your email for a sign-in link"})
}

// magicLink falls back to the request's own origin when BASE_URL is unset
func (h *AuthHandler) magicLink(r *http.Request, token, email string) string {
	base := strings.TrimRight(h.config.BaseURL, "/")
	if base == "" {
		base = middleware.RequestScheme(r) + "://" + r.Host
	}
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return base + callbackPath + "?" + q.Encode()
}

// Callback 兑换魔法链接，建立会话
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.URL.Query().Get("token")
	email := normalizeEmail(r.URL.Query().Get("email"))
	if token == "" || email == "" {
		h.verificationFailed(w, r, "missing token or email")
		return
	}

	vt, err := h.db.ConsumeVerificationToken(ctx, email, utils.HashToken(token, h.config.JWTSecret))
	if err != nil {
		h.verificationFailed(w, r, err.Error())
		return
	}
	now := h.now()
	if !vt.Expires.After(now) {
		h.verificationFailed(w, r, "token expired")
		return
	}

	user, isNew, err := h.getOrCreateUser(r, email, now)
	if err != nil {
		fmt.Printf("❌ Failed to resolve user %s: %v\n", email, err)
		h.verificationFailed(w, r, "user lookup failed")
		return
	}

	if isNew && h.seeder != nil {
		// 首次登录生成演示数据；失败不影响登录
		if summary, err := h.seeder.Seed(ctx, user.ID); err != nil {
			fmt.Printf("⚠️  Demo seeding failed for new user %s: %v\n", user.ID, err)
		} else {
			fmt.Printf("🌱 Seeded %d clients and %d tasks for new user %s\n", summary.Clients, summary.Tasks, user.ID)
		}
	}

	accessToken, refreshToken, expiresIn, err := h.jwt.GenerateTokenPair(user.ID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate tokens")
		return
	}
	h.setSessionCookie(w, accessToken, time.Unix(expiresIn, 0))

	fmt.Printf("✅ User %s signed in (new: %v)\n", user.ID, isNew)
	if wantsJSON(r) {
		utils.WriteSuccessResponse(w, models.SessionResponse{
			User:         *user,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    expiresIn,
			IsNewUser:    isNew,
		})
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// getOrCreateUser returns the user for email, creating and verifying it on
// first sign in. A concurrent creation of the same email is resolved by
// reading the winner back.
func (h *AuthHandler) getOrCreateUser(r *http.Request, email string, now time.Time) (*models.User, bool, error) {
	ctx := r.Context()
	verified := now.UTC()

	user, err := h.db.GetUserByEmail(ctx, email)
	if err == nil {
		if user.EmailVerified == nil {
			if err := h.db.MarkEmailVerified(ctx, user.ID, verified); err != nil {
				return nil, false, err
			}
			user.EmailVerified = &verified
		}
		return user, false, nil
	}
	if !database.IsNotFound(err) {
		return nil, false, err
	}

	user = &models.User{Email: email, EmailVerified: &verified}
	if err := h.db.CreateUser(ctx, user); err != nil {
		if database.IsDuplicate(err) {
			existing, gerr := h.db.GetUserByEmail(ctx, email)
			return existing, false, gerr
		}
		return nil, false, err
	}
	return user, true, nil
}

func (h *AuthHandler) verificationFailed(w http.ResponseWriter, r *http.Request, reason string) {
	fmt.Printf("❌ Magic link verification failed: %s\n", reason)
	if wantsJSON(r) {
		utils.WriteUnauthorizedResponse(w, "Invalid or expired sign-in link")
		return
	}
	http.Redirect(w, r, "/login?error=Verification", http.StatusFound)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.WriteBadRequestResponse(w, "refresh_token is required")
		return
	}

	accessToken, expiresIn, err := h.jwt.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid or expired refresh token: "+err.Error())
		return
	}
	h.setSessionCookie(w, accessToken, time.Unix(expiresIn, 0))

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"access_token": accessToken,
		"expires_in":   expiresIn,
	})
}

// Session 返回当前会话用户
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	user, err := h.db.GetUserByID(r.Context(), caller.ID)
	if err != nil {
		if database.IsNotFound(err) {
			utils.WriteUnauthorizedResponse(w, "Session user no longer exists")
			return
		}
		writeStoreError(w, "load session user", err, "")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"user": map[string]string{"id": user.ID, "email": user.Email},
	})
}

// SignOut 清除会话 cookie
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	if wantsJSON(r) {
		utils.WriteSuccessResponse(w, map[string]bool{"signedOut": true})
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
