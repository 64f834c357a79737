package api

import (
	"squares-server/internal/common/helper"
	"squares-server/internal/service"
)

// AdminWalletController 提现审批、入账审核与调账
type AdminWalletController struct{ baseController }

// Approve POST /api/admin/withdrawal/:id/approve
func (c *AdminWalletController) Approve() {
	id, ok := c.idParam()
	if !ok {
		return
	}
	w, err := svc.Withdrawal.ApproveWithdrawal(c.reqCtx(), id, helper.Operator(c.Ctx), c.traceID())
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(withdrawalView(w))
}

// Reject POST /api/admin/withdrawal/:id/reject
func (c *AdminWalletController) Reject() {
	id, ok := c.idParam()
	if !ok {
		return
	}
	w, err := svc.Withdrawal.RejectWithdrawal(c.reqCtx(), id, helper.Operator(c.Ctx), c.traceID())
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(withdrawalView(w))
}

// Adjust POST /api/admin/ledger/adjust  {"user_id":1,"amount":"-5.00","description":"..."}
func (c *AdminWalletController) Adjust() {
	in, ok, msg := helper.ParseAndValidateAdjust(c.Ctx)
	if !ok {
		c.badRequest(msg)
		return
	}
	e, bal, err := svc.Ledger.AdminAdjust(c.reqCtx(), service.AdjustInput{
		UserID:      in.UserID,
		Amount:      in.AmountDec,
		Description: in.Description,
		Operator:    helper.Operator(c.Ctx),
		TraceID:     c.traceID(),
	})
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(map[string]interface{}{"entry": entryView(e), "balance": bal.StringFixed(2)})
}

// Verify POST /api/admin/ledger/:id/verify  {"approve": true|false}
// 待审核充值通过后计入余额
func (c *AdminWalletController) Verify() {
	id, ok := c.idParam()
	if !ok {
		return
	}
	f, ok, msg := helper.ParseFlag(c.Ctx)
	if !ok || f.Approve == nil {
		if msg == "" {
			msg = "approve required"
		}
		c.badRequest(msg)
		return
	}
	e, err := svc.Ledger.VerifyEntry(c.reqCtx(), id, *f.Approve, helper.Operator(c.Ctx), c.traceID())
	if err != nil {
		c.fail(err)
		return
	}
	c.ok(entryView(e))
}
