package service

import (
	"context"
	"fmt"
	"time"

	"squares-server/common/constant"
	"squares-server/common/logger"
	infrds "squares-server/internal/infra/redis"
	"squares-server/internal/metrics"
	"squares-server/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ClaimInput 抢格子参数
type ClaimInput struct {
	GameID  int64
	Row     int
	Col     int
	UserID  int64
	TraceID string
}

// Receipt 认领凭证；免费局 LedgerEntryID 为 0
type Receipt struct {
	GameID        int64
	Row           int
	Col           int
	UserID        int64
	Fee           decimal.Decimal
	LedgerEntryID int64
	Balance       decimal.Decimal
	ClaimedAt     int64
}

type ClaimService interface {
	ClaimBox(ctx context.Context, in ClaimInput) (*Receipt, error)
	ReverseClaim(ctx context.Context, gameID int64, row, col int, operator, traceID string) error
}

type claimService struct{ base }

func NewClaimService(db *sqlx.DB, opts ...Option) ClaimService {
	return &claimService{base: newBase(db, opts...)}
}

// ClaimBox 抢格子主流程（单事务）：
//  1. 校验坐标；共享锁读取比赛（不存在/未开放/号码已分配拒绝）
//  2. 锁定用户账户行（串行化同一用户的所有账变）
//  3. 付费局校验余额，免费局校验持有数上限
//  4. CAS 认领格子
//  5. 付费局追加 claim-debit 流水并回写到格子
//  6. 写 outbox，提交，删除棋盘缓存
func (s *claimService) ClaimBox(ctx context.Context, in ClaimInput) (rc *Receipt, err error) {
	start := time.Now()
	gameType := "unknown"
	defer func() { metrics.RecordClaim(Kind(err), gameType, start) }()

	if in.UserID <= 0 {
		return nil, errorf(ErrValidation, "user_id required")
	}
	if !validCell(in.Row, in.Col) {
		return nil, errorf(ErrValidation, "cell (%d,%d) out of range", in.Row, in.Col)
	}
	ctx = logger.WithTraceID(ctx, in.TraceID)
	fields := []zap.Field{zap.Int64("game_id", in.GameID), zap.Int64("user_id", in.UserID), zap.Int("row", in.Row), zap.Int("col", in.Col)}

	tx, txCtx, cancel, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	g, err := model.GetGameForShare(txCtx, tx, in.GameID)
	if err != nil {
		return nil, storageErr("get game", notFound(err, "game %d", in.GameID))
	}
	if !g.Active() {
		logger.WarnCtx(ctx, "claim rejected: game inactive", fields...)
		return nil, errorf(ErrInvalidState, "game %d inactive", in.GameID)
	}
	if g.Assigned() {
		// 号码公布后棋盘锁定，否则可在比分录入后买入中奖格子
		logger.WarnCtx(ctx, "claim rejected: numbers assigned", fields...)
		return nil, errorf(ErrInvalidState, "game %d grid locked after number assignment", in.GameID)
	}
	gameType = "paid"
	if g.Free() {
		gameType = "free"
	}

	bal, err := lockBalance(txCtx, tx, in.UserID)
	if err != nil {
		return nil, err
	}
	fee := g.EntryFee
	if g.Free() {
		owned, err := model.CountOwnedBoxes(txCtx, tx, in.GameID, in.UserID)
		if err != nil {
			return nil, storageErr("count owned boxes", err)
		}
		if owned >= s.settings.FreeBoxLimit {
			logger.WarnCtx(ctx, "claim rejected: free box limit", append(fields, zap.Int("owned", owned))...)
			return nil, errorf(ErrLimitExceeded, "user %d already owns %d boxes in game %d", in.UserID, owned, in.GameID)
		}
	} else if bal.LessThan(fee) {
		logger.WarnCtx(ctx, "claim rejected: insufficient funds",
			append(fields, zap.String("balance", bal.StringFixed(2)), zap.String("fee", fee.StringFixed(2)))...)
		return nil, errorf(ErrInsufficientFunds, "balance %s < fee %s", bal.StringFixed(2), fee.StringFixed(2))
	}

	box, err := ClaimBoxTx(txCtx, tx, in.GameID, in.Row, in.Col, in.UserID)
	if err != nil {
		logger.WarnCtx(ctx, "claim rejected", append(fields, zap.Error(err))...)
		return nil, err
	}

	rc = &Receipt{GameID: in.GameID, Row: in.Row, Col: in.Col, UserID: in.UserID, Fee: decimal.Zero, Balance: bal, ClaimedAt: box.ClaimedAt.Int64}
	if !g.Free() {
		e := &model.LedgerEntry{
			UserID:      in.UserID,
			Amount:      fee.Neg(),
			Kind:        constant.KindClaimDebit,
			GameID:      nullGame(in.GameID),
			Status:      constant.EntryApproved,
			BizKey:      nullKey(claimBizKey(box)),
			Description: fmt.Sprintf("claim box (%d,%d)", in.Row, in.Col),
			TraceID:     in.TraceID,
		}
		entryID, err := appendEntry(txCtx, tx, e)
		if err != nil {
			return nil, err
		}
		if err := model.LinkBoxEntry(txCtx, tx, box.ID, entryID); err != nil {
			return nil, storageErr("link box entry", err)
		}
		rc.Fee = fee
		rc.LedgerEntryID = entryID
		rc.Balance = bal.Sub(fee)
	}

	payload := map[string]any{
		"event":    "box_claimed",
		"game_id":  in.GameID,
		"row":      in.Row,
		"col":      in.Col,
		"user_id":  in.UserID,
		"fee":      rc.Fee.StringFixed(2),
		"entry_id": rc.LedgerEntryID,
	}
	if err := model.CreateOutbox(txCtx, tx, model.TopicBoxClaimed, claimBizKey(box), payload); err != nil {
		return nil, storageErr("write outbox", err)
	}
	if err := commit(tx); err != nil {
		return nil, err
	}

	invalidateCache(ctx, infrds.GridKey(in.GameID))
	logger.InfoCtx(ctx, "box claimed", append(fields, zap.String("fee", rc.Fee.StringFixed(2)), zap.Int64("entry_id", rc.LedgerEntryID))...)
	return rc, nil
}

// ReverseClaim 后台撤销认领：清除归属，付费局追加等额 refund 流水；号码分配后不允许撤销
func (s *claimService) ReverseClaim(ctx context.Context, gameID int64, row, col int, operator, traceID string) error {
	if !validCell(row, col) {
		return errorf(ErrValidation, "cell (%d,%d) out of range", row, col)
	}
	tx, txCtx, cancel, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	g, err := model.GetGameForUpdate(txCtx, tx, gameID)
	if err != nil {
		return storageErr("get game", notFound(err, "game %d", gameID))
	}
	if g.Assigned() {
		return errorf(ErrInvalidState, "game %d numbers already assigned", gameID)
	}
	box, err := model.GetBoxForUpdate(txCtx, tx, gameID, row, col)
	if err != nil {
		return storageErr("get box", notFound(err, "box (%d,%d) of game %d", row, col, gameID))
	}
	if !box.Owned() {
		return errorf(ErrInvalidState, "box (%d,%d) of game %d not owned", row, col, gameID)
	}
	owner := box.OwnerID.Int64

	var refund decimal.Decimal
	if box.LedgerEntryID.Valid {
		debit, err := model.GetLedgerEntry(txCtx, tx, box.LedgerEntryID.Int64)
		if err != nil {
			return storageErr("get debit entry", err)
		}
		if _, err := lockBalance(txCtx, tx, owner); err != nil {
			return err
		}
		refund = debit.Amount.Neg()
		e := &model.LedgerEntry{
			UserID:      owner,
			Amount:      refund,
			Kind:        constant.KindRefund,
			GameID:      nullGame(gameID),
			Status:      constant.EntryApproved,
			BizKey:      nullKey(fmt.Sprintf("refund:%d", debit.ID)),
			Description: fmt.Sprintf("reverse claim (%d,%d), debit #%d", row, col, debit.ID),
			TraceID:     traceID,
		}
		if _, err := appendEntry(txCtx, tx, e); err != nil {
			return err
		}
	}
	if n, err := model.ReleaseBox(txCtx, tx, box.ID, owner); err != nil {
		return storageErr("release box", err)
	} else if n == 0 {
		return errorf(ErrInvalidState, "box (%d,%d) of game %d changed concurrently", row, col, gameID)
	}

	audit := map[string]any{"row": row, "col": col, "user_id": owner, "refund": refund.StringFixed(2)}
	if err := model.WriteAudit(txCtx, tx, gameID, model.AuditClaimReversed, "owned", "unclaimed", operator, traceID, audit); err != nil {
		return storageErr("write audit", err)
	}
	if err := commit(tx); err != nil {
		return err
	}
	invalidateCache(ctx, infrds.GridKey(gameID))
	logger.InfoCtx(ctx, "claim reversed",
		zap.Int64("game_id", gameID), zap.Int("row", row), zap.Int("col", col),
		zap.Int64("user_id", owner), zap.String("refund", refund.StringFixed(2)), zap.String("operator", operator))
	return nil
}

// claimBizKey 每次认领唯一：claim:{game}:{row}:{col}:{claimed_at}
// 撤销后同一格子可再次认领，claimed_at 区分不同轮次
func claimBizKey(b *model.Box) string {
	return fmt.Sprintf("claim:%d:%d:%d:%d", b.GameID, b.RowIdx, b.ColIdx, b.ClaimedAt.Int64)
}
