package api

import (
	"squares-server/internal/common/helper"
	"squares-server/internal/common/response"
	"squares-server/internal/config"
	"squares-server/internal/service"
)

type ClaimController struct{ baseController }

// Claim 抢格子：POST /api/claim
// 入参 game_id/row/col（JSON 或表单），用户身份来自 X-User-Id
// 付费局同一事务内扣款并占格，任一失败均不产生副作用
func (c *ClaimController) Claim() {
	if config.Flag(config.FlagClaimsPaused) {
		response.Error(&c.Controller, 503, response.CodeClaimsPaused, c.traceID())
		return
	}
	// 这里必须要对业务参数严格校验，service 只做业务规则校验
	in, ok, msg := helper.ParseAndValidateClaim(c.Ctx)
	if !ok {
		c.badRequest(msg)
		return
	}
	rc, err := svc.Claim.ClaimBox(c.reqCtx(), service.ClaimInput{
		GameID:  in.GameID,
		Row:     *in.Row,
		Col:     *in.Col,
		UserID:  helper.UserID(c.Ctx),
		TraceID: c.traceID(),
	})
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(receiptView(rc))
}
