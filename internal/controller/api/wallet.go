package api

import (
	"squares-server/internal/common/helper"
	"squares-server/internal/model"
	"squares-server/internal/service"
)

// WalletController 用户余额、流水与提现
type WalletController struct{ baseController }

// Balance GET /api/user/balance
func (c *WalletController) Balance() {
	uid := helper.UserID(c.Ctx)
	bal, err := svc.Query.Balance(c.reqCtx(), uid)
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]interface{}{"user_id": uid, "balance": bal.StringFixed(2)})
}

// Ledger GET /api/user/ledger?kind=&status=&game_id=&offset=&limit=
func (c *WalletController) Ledger() {
	offset, ok1 := helper.QueryUint(c.Ctx, "offset")
	limit, ok2 := helper.QueryUint(c.Ctx, "limit")
	gameID, ok3 := helper.QueryUint(c.Ctx, "game_id")
	if !ok1 || !ok2 || !ok3 {
		c.badRequest("offset/limit/game_id must be non-negative integers")
		return
	}
	list, err := svc.Query.LedgerHistory(c.reqCtx(), model.LedgerFilter{
		UserID: helper.UserID(c.Ctx),
		Kind:   c.GetString("kind"),
		Status: c.GetString("status"),
		GameID: int64(gameID),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]interface{}{"entries": entriesView(list)})
}

// Withdraw POST /api/withdrawal
// 申请即冻结（withdrawal-hold），驳回时退回
func (c *WalletController) Withdraw() {
	in, ok, msg := helper.ParseAndValidateWithdrawal(c.Ctx)
	if !ok {
		c.badRequest(msg)
		return
	}
	w, err := svc.Withdrawal.RequestWithdrawal(c.reqCtx(), service.WithdrawalInput{
		UserID:      helper.UserID(c.Ctx),
		Amount:      in.AmountDec,
		Destination: in.Destination,
		TraceID:     c.traceID(),
	})
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(withdrawalView(w))
}

// Withdrawals GET /api/user/withdrawals?status=&limit=
func (c *WalletController) Withdrawals() {
	limit, ok := helper.QueryUint(c.Ctx, "limit")
	if !ok {
		c.badRequest("limit must be a non-negative integer")
		return
	}
	list, err := svc.Withdrawal.List(c.reqCtx(), helper.UserID(c.Ctx), c.GetString("status"), limit)
	if err != nil {
		c.fail(err)
		return
	}
	out := make([]map[string]interface{}, 0, len(list))
	for i := range list {
		out = append(out, withdrawalView(&list[i]))
	}
	c.ok(map[string]interface{}{"withdrawals": out})
}
