package api

import (
	"squares-server/common/constant"
	"squares-server/internal/common/helper"
	"squares-server/internal/service"
)

// AdminGameController 比赛管理：建局、开关、分配号码、录入比分、派彩、撤销认领
type AdminGameController struct{ baseController }

// Create POST /api/admin/game
func (c *AdminGameController) Create() {
	in, ok, msg := helper.ParseAndValidateGame(c.Ctx)
	if !ok {
		c.badRequest(msg)
		return
	}
	g, err := svc.Grid.CreateGame(c.reqCtx(), service.GameConfig{
		Sport:     in.Sport,
		HomeTeam:  in.HomeTeam,
		AwayTeam:  in.AwayTeam,
		StartTime: in.StartTime,
		EntryFee:  in.Fee,
		Payouts:   in.Payouts,
		Inactive:  in.Inactive,
		Operator:  helper.Operator(c.Ctx),
		TraceID:   c.traceID(),
	})
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(gameView(g))
}

// Active POST /api/admin/game/:id/active  {"active": true|false}
func (c *AdminGameController) Active() {
	id, ok := c.idParam()
	if !ok {
		return
	}
	f, ok, msg := helper.ParseFlag(c.Ctx)
	if !ok || f.Active == nil {
		if msg == "" {
			msg = "active required"
		}
		c.badRequest(msg)
		return
	}
	if err := svc.Grid.SetActive(c.reqCtx(), id, *f.Active, helper.Operator(c.Ctx), c.traceID()); err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]interface{}{"game_id": id, "active": *f.Active})
}

// Assign POST /api/admin/game/:id/assign
// 仅在开赛前窗口内允许，每局只成功一次
func (c *AdminGameController) Assign() {
	id, ok := c.idParam()
	if !ok {
		return
	}
	res, err := svc.Numbers.AssignNumbers(c.reqCtx(), id, helper.Operator(c.Ctx), c.traceID())
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]interface{}{
		"game_id":      res.GameID,
		"home_numbers": []int(res.HomeNumbers),
		"away_numbers": []int(res.AwayNumbers),
	})
}

// Scores POST /api/admin/game/:id/scores  {"checkpoint":0,"home_score":7,"away_score":3}
func (c *AdminGameController) Scores() {
	id, ok := c.idParam()
	if !ok {
		return
	}
	in, ok, msg := helper.ParseAndValidateScores(c.Ctx)
	if !ok {
		c.badRequest(msg)
		return
	}
	wl, err := svc.Settlement.RecordScores(c.reqCtx(), service.ScoreInput{
		GameID:     id,
		Checkpoint: in.Checkpoint,
		HomeScore:  *in.HomeScore,
		AwayScore:  *in.AwayScore,
		Operator:   helper.Operator(c.Ctx),
		TraceID:    c.traceID(),
	})
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]interface{}{
		"game_id":    id,
		"checkpoint": constant.CheckpointName(in.Checkpoint),
		"winners":    wl,
	})
}

// Payouts POST /api/admin/game/:id/payouts
// 可重复调用，已派彩的检查点不会重复入账
func (c *AdminGameController) Payouts() {
	id, ok := c.idParam()
	if !ok {
		return
	}
	pl, err := svc.Settlement.ProcessPayouts(c.reqCtx(), id, helper.Operator(c.Ctx), c.traceID())
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]interface{}{"game_id": id, "payouts": pl})
}

// Reverse POST /api/admin/game/:id/reverse  {"row":3,"col":7}
// 号码分配前撤销认领，付费局退回报名费
func (c *AdminGameController) Reverse() {
	id, ok := c.idParam()
	if !ok {
		return
	}
	in, ok, msg := helper.ParseAndValidateCell(c.Ctx)
	if !ok {
		c.badRequest(msg)
		return
	}
	if err := svc.Claim.ReverseClaim(c.reqCtx(), id, *in.Row, *in.Col, helper.Operator(c.Ctx), c.traceID()); err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]interface{}{"game_id": id, "row": *in.Row, "col": *in.Col})
}
