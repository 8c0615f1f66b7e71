package handler

import (
	"context"
	"net/http"
	"sync"

	"democrm-backend/pkg/config"
	"democrm-backend/pkg/server"
	"democrm-backend/pkg/utils"
)

var (
	routerMu     sync.Mutex
	cachedRouter http.Handler
)

// Handler 是Vercel函数的入口点
// 所有页面与 API 端点集中在同一个 Chi 路由器中，热启动时复用
func Handler(w http.ResponseWriter, r *http.Request) {
	router, err := getRouter(r.Context())
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}
	router.ServeHTTP(w, r)
}

// getRouter builds the router on first use; a failed build is retried on the next request
func getRouter(ctx context.Context) (http.Handler, error) {
	routerMu.Lock()
	defer routerMu.Unlock()

	if cachedRouter != nil {
		return cachedRouter, nil
	}

	// 加载并验证配置
	cfg, err := config.GetCached()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps, err := server.BuildDependencies(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cachedRouter = server.NewRouter(deps)
	return cachedRouter, nil
}
