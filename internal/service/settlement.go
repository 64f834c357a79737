package service

import (
	"context"
	"database/sql"
	"errors"
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

// Winner 某检查点的中奖格子
type Winner struct {
	Checkpoint int    `json:"checkpoint"`
	Name       string `json:"name"`
	HomeScore  int    `json:"home_score"`
	AwayScore  int    `json:"away_score"`
	Row        int    `json:"row"`
	Col        int    `json:"col"`
	UserID     int64  `json:"user_id"`
}

type WinnerList []Winner

// Payout 派彩记录；Issued 表示由本次调用创建
type Payout struct {
	Checkpoint    int             `json:"checkpoint"`
	UserID        int64           `json:"user_id"`
	Row           int             `json:"row"`
	Col           int             `json:"col"`
	Amount        decimal.Decimal `json:"amount"`
	LedgerEntryID int64           `json:"ledger_entry_id"`
	Issued        bool            `json:"issued"`
}

type PayoutList []Payout

// ScoreInput 录入比分
type ScoreInput struct {
	GameID     int64
	Checkpoint int
	HomeScore  int
	AwayScore  int
	Operator   string
	TraceID    string
}

type SettlementService interface {
	RecordScores(ctx context.Context, in ScoreInput) (WinnerList, error)
	ProcessPayouts(ctx context.Context, gameID int64, operator, traceID string) (PayoutList, error)
}

type settlementService struct{ base }

func NewSettlementService(db *sqlx.DB, opts ...Option) SettlementService {
	return &settlementService{base: newBase(db, opts...)}
}

// ResolveCell 比分个位数映射到格子：行轴为客队排列，列轴为主队排列
func ResolveCell(home, away model.Permutation, homeScore, awayScore int) (row, col int, ok bool) {
	if !home.Valid() || !away.Valid() || homeScore < 0 || awayScore < 0 {
		return -1, -1, false
	}
	row = away.IndexOf(awayScore % 10)
	col = home.IndexOf(homeScore % 10)
	return row, col, true
}

// ResolveWinners 按已录入的检查点计算中奖者；未分配号码时返回空
// 未录入比分的检查点不参与计算，无主格子不产生中奖者
func ResolveWinners(g *model.Game, scores []model.GameScore, owners map[[2]int]int64) WinnerList {
	out := WinnerList{}
	if !g.Assigned() {
		return out
	}
	for _, sc := range scores {
		if sc.Checkpoint < 0 || sc.Checkpoint >= constant.CheckpointCount {
			continue
		}
		row, col, ok := ResolveCell(g.HomeNumbers, g.AwayNumbers, sc.HomeScore, sc.AwayScore)
		if !ok {
			continue
		}
		owner, owned := owners[[2]int{row, col}]
		if !owned {
			continue
		}
		out = append(out, Winner{
			Checkpoint: sc.Checkpoint,
			Name:       constant.CheckpointName(sc.Checkpoint),
			HomeScore:  sc.HomeScore,
			AwayScore:  sc.AwayScore,
			Row:        row,
			Col:        col,
			UserID:     owner,
		})
	}
	return out
}

// ownerMap 格子归属：(row, col) -> user_id，仅包含已认领格子
func ownerMap(boxes []model.Box) map[[2]int]int64 {
	m := make(map[[2]int]int64, len(boxes))
	for _, b := range boxes {
		if b.Owned() {
			m[[2]int{b.RowIdx, b.ColIdx}] = b.OwnerID.Int64
		}
	}
	return m
}

// resolveGameWinners 读取比分与归属后计算中奖者
func resolveGameWinners(ctx context.Context, q sqlx.QueryerContext, g *model.Game) (WinnerList, error) {
	if !g.Assigned() {
		return WinnerList{}, nil
	}
	scores, err := model.ListScores(ctx, q, g.ID)
	if err != nil {
		return nil, storageErr("list scores", err)
	}
	if len(scores) == 0 {
		return WinnerList{}, nil
	}
	boxes, err := model.ListBoxes(ctx, q, g.ID)
	if err != nil {
		return nil, storageErr("list boxes", err)
	}
	return ResolveWinners(g, scores, ownerMap(boxes)), nil
}

// RecordScores 录入/覆盖检查点比分并返回整局中奖列表
// 相同比分重放不产生任何变更；已派彩的检查点不允许修改比分
func (s *settlementService) RecordScores(ctx context.Context, in ScoreInput) (wl WinnerList, err error) {
	start := time.Now()
	defer func() { metrics.RecordSettlement("scores", Kind(err), start) }()

	if in.Checkpoint < 0 || in.Checkpoint >= constant.CheckpointCount {
		return nil, errorf(ErrValidation, "checkpoint %d out of range", in.Checkpoint)
	}
	if in.HomeScore < 0 || in.AwayScore < 0 {
		return nil, errorf(ErrValidation, "scores must be >= 0")
	}
	ctx = logger.WithTraceID(ctx, in.TraceID)

	tx, txCtx, cancel, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	g, err := model.GetGameForUpdate(txCtx, tx, in.GameID)
	if err != nil {
		return nil, storageErr("get game", notFound(err, "game %d", in.GameID))
	}
	if !g.Active() {
		return nil, errorf(ErrInvalidState, "game %d inactive", in.GameID)
	}

	changed := true
	prev, err := model.GetScore(txCtx, tx, in.GameID, in.Checkpoint)
	switch {
	case err == nil:
		if prev.HomeScore == in.HomeScore && prev.AwayScore == in.AwayScore {
			changed = false
			break
		}
		paid, perr := model.PayoutLogExists(txCtx, tx, in.GameID, in.Checkpoint)
		if perr != nil {
			return nil, storageErr("check payout log", perr)
		}
		if paid {
			return nil, errorf(ErrInvalidState, "checkpoint %s of game %d already paid", constant.CheckpointName(in.Checkpoint), in.GameID)
		}
	case errors.Is(err, sql.ErrNoRows):
		prev = nil
	default:
		return nil, storageErr("get score", err)
	}

	if changed {
		sc := &model.GameScore{GameID: in.GameID, Checkpoint: in.Checkpoint, HomeScore: in.HomeScore, AwayScore: in.AwayScore}
		if err := model.UpsertScore(txCtx, tx, sc); err != nil {
			return nil, storageErr("upsert score", err)
		}
		prevState := ""
		if prev != nil {
			prevState = fmt.Sprintf("%d-%d", prev.HomeScore, prev.AwayScore)
		}
		nextState := fmt.Sprintf("%d-%d", in.HomeScore, in.AwayScore)
		audit := map[string]any{"checkpoint": constant.CheckpointName(in.Checkpoint)}
		if err := model.WriteAudit(txCtx, tx, in.GameID, model.AuditScoreRecorded, prevState, nextState, in.Operator, in.TraceID, audit); err != nil {
			return nil, storageErr("write audit", err)
		}
	}

	wl, err = resolveGameWinners(txCtx, tx, g)
	if err != nil {
		return nil, err
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	if changed {
		invalidateCache(ctx, infrds.WinnersKey(in.GameID))
	}
	logger.InfoCtx(ctx, "scores recorded",
		zap.Int64("game_id", in.GameID), zap.String("checkpoint", constant.CheckpointName(in.Checkpoint)),
		zap.Int("home", in.HomeScore), zap.Int("away", in.AwayScore), zap.Bool("changed", changed), zap.Int("winners", len(wl)))
	return wl, nil
}

// ProcessPayouts 为每个已产生中奖者且派彩金额 > 0 的检查点发放一次派彩；比赛须处于开放状态
// 比赛行排他锁串行化并发调用；payout_log 唯一索引兜底，冲突视为已派彩
func (s *settlementService) ProcessPayouts(ctx context.Context, gameID int64, operator, traceID string) (pl PayoutList, err error) {
	start := time.Now()
	issued := 0
	defer func() {
		metrics.RecordSettlement("payouts", Kind(err), start)
		if err == nil {
			metrics.AddPayoutIssued(issued)
		}
	}()
	ctx = logger.WithTraceID(ctx, traceID)

	tx, txCtx, cancel, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	g, err := model.GetGameForUpdate(txCtx, tx, gameID)
	if err != nil {
		return nil, storageErr("get game", notFound(err, "game %d", gameID))
	}
	if !g.Active() {
		// 关闭的比赛视为冻结（如比分争议），与录入比分一致
		return nil, errorf(ErrInvalidState, "game %d inactive", gameID)
	}
	if !g.Assigned() {
		return nil, errorf(ErrInvalidState, "game %d numbers not assigned", gameID)
	}

	winners, err := resolveGameWinners(txCtx, tx, g)
	if err != nil {
		return nil, err
	}
	logs, err := model.ListPayoutLogs(txCtx, tx, gameID)
	if err != nil {
		return nil, storageErr("list payout logs", err)
	}
	paid := make(map[int]bool, len(logs))
	for _, l := range logs {
		paid[l.Checkpoint] = true
	}

	fresh := make(map[int]bool)
	for _, w := range winners {
		amount := g.Payout(w.Checkpoint)
		if !amount.IsPositive() || paid[w.Checkpoint] {
			continue
		}
		ok, err := s.issuePayout(txCtx, tx, g, w, amount, traceID, operator)
		if err != nil {
			logger.ErrorCtx(ctx, "issue payout failed",
				zap.Int64("game_id", gameID), zap.Int("checkpoint", w.Checkpoint), zap.Error(err))
			return nil, err
		}
		if ok {
			fresh[w.Checkpoint] = true
			issued++
		}
	}

	logs, err = model.ListPayoutLogs(txCtx, tx, gameID)
	if err != nil {
		return nil, storageErr("list payout logs", err)
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	if issued > 0 {
		invalidateCache(ctx, infrds.WinnersKey(gameID))
	}

	pl = make(PayoutList, 0, len(logs))
	for _, l := range logs {
		pl = append(pl, Payout{
			Checkpoint:    l.Checkpoint,
			UserID:        l.UserID,
			Row:           l.RowIdx,
			Col:           l.ColIdx,
			Amount:        l.Amount,
			LedgerEntryID: l.LedgerEntryID,
			Issued:        fresh[l.Checkpoint],
		})
	}
	logger.InfoCtx(ctx, "payouts processed",
		zap.Int64("game_id", gameID), zap.Int("issued", issued), zap.Int("total", len(pl)), zap.String("operator", operator))
	return pl, nil
}

// issuePayout 写 payout_log（唯一索引占位）后追加 payout 流水；返回 false 表示已被其他调用派发
func (s *settlementService) issuePayout(ctx context.Context, tx *sqlx.Tx, g *model.Game, w Winner, amount decimal.Decimal, traceID, operator string) (bool, error) {
	plog := &model.PayoutLog{
		GameID:     g.ID,
		Checkpoint: w.Checkpoint,
		UserID:     w.UserID,
		RowIdx:     w.Row,
		ColIdx:     w.Col,
		Amount:     amount,
		TraceID:    traceID,
	}
	if err := model.CreatePayoutLog(ctx, tx, plog); err != nil {
		if model.IsDuplicateKey(err) {
			return false, nil
		}
		return false, storageErr("create payout log", err)
	}

	if _, err := model.LockAccount(ctx, tx, w.UserID); err != nil {
		return false, storageErr("lock account", err)
	}
	e := &model.LedgerEntry{
		UserID:      w.UserID,
		Amount:      amount,
		Kind:        constant.KindPayout,
		GameID:      nullGame(g.ID),
		Status:      constant.EntryApproved,
		BizKey:      nullKey(fmt.Sprintf("payout:%d:%d", g.ID, w.Checkpoint)),
		Description: fmt.Sprintf("%s payout %d-%d", constant.CheckpointName(w.Checkpoint), w.HomeScore, w.AwayScore),
		TraceID:     traceID,
	}
	entryID, err := appendEntry(ctx, tx, e)
	if err != nil {
		return false, err
	}
	if err := model.SetPayoutLogEntry(ctx, tx, plog.ID, entryID); err != nil {
		return false, storageErr("link payout entry", err)
	}

	payload := map[string]any{
		"event":      "payout_issued",
		"game_id":    g.ID,
		"checkpoint": constant.CheckpointName(w.Checkpoint),
		"user_id":    w.UserID,
		"row":        w.Row,
		"col":        w.Col,
		"amount":     amount.StringFixed(2),
		"entry_id":   entryID,
	}
	bizKey := fmt.Sprintf("payout:%d:%d", g.ID, w.Checkpoint)
	if err := model.CreateOutbox(ctx, tx, model.TopicPayoutIssued, bizKey, payload); err != nil {
		return false, storageErr("write outbox", err)
	}
	if err := model.WriteAudit(ctx, tx, g.ID, model.AuditPayoutIssued, "", constant.CheckpointName(w.Checkpoint), operator, traceID, payload); err != nil {
		return false, storageErr("write audit", err)
	}
	return true, nil
}
