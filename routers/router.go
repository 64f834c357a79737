package routers

import (
	"squares-server/internal/config"
	"squares-server/internal/controller/api"
	"squares-server/internal/metrics"
	"squares-server/internal/middleware"

	beego "github.com/beego/beego/v2/server/web"
)

// Register 注册HTTP路由与全局过滤器；须在 config 加载、api.Use 注入服务之后调用
func Register(cfg *config.Config) {
	beego.BConfig.RecoverPanic = true
	beego.BConfig.RecoverFunc = middleware.RecoverPanic
	beego.BConfig.CopyRequestBody = false

	// 全局过滤器（按执行顺序）
	// 1. 请求ID注入
	beego.InsertFilter("/*", beego.BeforeRouter, middleware.RequestIDFilter)

	// 2. HTTP 指标收集
	beego.InsertFilter("/*", beego.BeforeExec, metrics.HTTPMetricsFilter)
	beego.InsertFilter("/*", beego.FinishRouter, metrics.HTTPMetricsAfter, beego.WithReturnOnOutput(false))

	// 健康检查（无需认证）
	beego.Router("/healthz", &api.HealthController{}, "get:Healthz")
	beego.Router("/readyz", &api.HealthController{}, "get:Readyz")

	// ========== 公开查询 ==========
	beego.Router("/api/game/:id/grid", &api.GameController{}, "get:Grid")
	beego.Router("/api/game/:id/winners", &api.GameController{}, "get:Winners")

	// ========== 用户接口：网关透传身份 + 按用户限流 ==========
	for _, p := range []string{"/api/claim", "/api/withdrawal", "/api/user/*"} {
		beego.InsertFilter(p, beego.BeforeExec, middleware.UserIdentityFilter)
		if cfg != nil && cfg.RateLimit.Enabled {
			beego.InsertFilter(p, beego.BeforeExec, middleware.RateLimitFilter)
		}
	}
	beego.Router("/api/claim", &api.ClaimController{}, "post:Claim")
	beego.Router("/api/withdrawal", &api.WalletController{}, "post:Withdraw")
	beego.Router("/api/user/balance", &api.WalletController{}, "get:Balance")
	beego.Router("/api/user/ledger", &api.WalletController{}, "get:Ledger")
	beego.Router("/api/user/withdrawals", &api.WalletController{}, "get:Withdrawals")

	// ========== 管理 API（需要管理员认证） ==========
	beego.InsertFilter("/api/admin/*", beego.BeforeExec, middleware.AdminAuthFilter)

	beego.Router("/api/admin/game", &api.AdminGameController{}, "post:Create")
	beego.Router("/api/admin/game/:id/active", &api.AdminGameController{}, "post:Active")
	beego.Router("/api/admin/game/:id/assign", &api.AdminGameController{}, "post:Assign")
	beego.Router("/api/admin/game/:id/scores", &api.AdminGameController{}, "post:Scores")
	beego.Router("/api/admin/game/:id/payouts", &api.AdminGameController{}, "post:Payouts")
	beego.Router("/api/admin/game/:id/reverse", &api.AdminGameController{}, "post:Reverse")

	beego.Router("/api/admin/withdrawal/:id/approve", &api.AdminWalletController{}, "post:Approve")
	beego.Router("/api/admin/withdrawal/:id/reject", &api.AdminWalletController{}, "post:Reject")
	beego.Router("/api/admin/ledger/adjust", &api.AdminWalletController{}, "post:Adjust")
	beego.Router("/api/admin/ledger/:id/verify", &api.AdminWalletController{}, "post:Verify")
}
