package api

// GameController 公开查询：棋盘归属与中奖格子
type GameController struct{ baseController }

// Grid GET /api/game/:id/grid
func (c *GameController) Grid() {
	id, ok := c.idParam()
	if !ok {
		return
	}
	m, err := svc.Query.OwnershipMap(c.reqCtx(), id)
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(m)
}

// Winners GET /api/game/:id/winners
// 仅包含已录入比分的检查点；未认领的中奖格子 user_id 为 0
func (c *GameController) Winners() {
	id, ok := c.idParam()
	if !ok {
		return
	}
	wl, err := svc.Query.Winners(c.reqCtx(), id)
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]interface{}{"game_id": id, "winners": wl})
}
