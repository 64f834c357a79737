package api

import (
	"context"
	"time"

	infmysql "squares-server/internal/infra/mysql"
	infrds "squares-server/internal/infra/redis"

	beego "github.com/beego/beego/v2/server/web"
)

// HealthController 提供健康检查端点：/healthz 与 /readyz
type HealthController struct{ beego.Controller }

// Healthz 存活探针：仅返回进程存活
func (c *HealthController) Healthz() {
	c.Ctx.Output.SetStatus(200)
	_ = c.Ctx.Output.Body([]byte("ok"))
}

// Readyz 就绪探针：MySQL 必须可用；Redis 仅用于缓存与限流，不可用时降级但仍就绪
func (c *HealthController) Readyz() {
	ctx, cancel := context.WithTimeout(c.Ctx.Request.Context(), time.Second)
	defer cancel()

	db := infmysql.SQLX()
	if db == nil || db.PingContext(ctx) != nil {
		c.Ctx.Output.SetStatus(503)
		_ = c.Ctx.Output.Body([]byte("mysql unavailable"))
		return
	}
	body := "ready"
	if err := infrds.Ping(ctx, 500*time.Millisecond); err != nil {
		body = "ready (redis degraded)"
	}
	c.Ctx.Output.SetStatus(200)
	_ = c.Ctx.Output.Body([]byte(body))
}
