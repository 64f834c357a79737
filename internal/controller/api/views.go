package api

import (
	"squares-server/common/constant"
	money "squares-server/common/helper"
	"squares-server/internal/model"
	"squares-server/internal/service"
)

// 金额统一输出两位小数字符串

func entryView(e *model.LedgerEntry) map[string]interface{} {
	v := map[string]interface{}{
		"id":          e.ID,
		"user_id":     e.UserID,
		"amount":      money.TrimDecimal(e.Amount),
		"kind":        e.Kind,
		"kind_desc":   constant.GetLedgerKindDesc(e.Kind),
		"status":      e.Status,
		"description": e.Description,
		"created_at":  e.CreatedAt,
	}
	if e.GameID.Valid {
		v["game_id"] = e.GameID.Int64
	}
	if e.BizKey.Valid {
		v["biz_key"] = e.BizKey.String
	}
	return v
}

func entriesView(list []model.LedgerEntry) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(list))
	for i := range list {
		out = append(out, entryView(&list[i]))
	}
	return out
}

func withdrawalView(w *model.WithdrawalRequest) map[string]interface{} {
	v := map[string]interface{}{
		"id":            w.ID,
		"user_id":       w.UserID,
		"amount":        money.TrimDecimal(w.Amount),
		"destination":   w.Destination,
		"status":        w.Status,
		"hold_entry_id": w.HoldEntryID,
		"operator":      w.Operator,
		"created_at":    w.CreatedAt,
		"updated_at":    w.UpdatedAt,
	}
	if w.ReleaseEntryID.Valid {
		v["release_entry_id"] = w.ReleaseEntryID.Int64
	}
	return v
}

func receiptView(r *service.Receipt) map[string]interface{} {
	v := map[string]interface{}{
		"game_id":    r.GameID,
		"row":        r.Row,
		"col":        r.Col,
		"user_id":    r.UserID,
		"fee":        money.TrimDecimal(r.Fee),
		"balance":    money.TrimDecimal(r.Balance),
		"claimed_at": r.ClaimedAt,
	}
	if r.LedgerEntryID > 0 {
		v["ledger_entry_id"] = r.LedgerEntryID
	}
	return v
}

func gameView(g *model.Game) map[string]interface{} {
	payouts := make(map[string]string, constant.CheckpointCount)
	for i := 0; i < constant.CheckpointCount; i++ {
		payouts[constant.CheckpointName(i)] = money.TrimDecimal(g.Payout(i))
	}
	return map[string]interface{}{
		"id":               g.ID,
		"sport":            g.Sport,
		"home_team":        g.HomeTeam,
		"away_team":        g.AwayTeam,
		"start_time":       g.StartTime,
		"entry_fee":        money.TrimDecimal(g.EntryFee),
		"active":           g.Active(),
		"numbers_assigned": g.Assigned(),
		"payouts":          payouts,
	}
}
