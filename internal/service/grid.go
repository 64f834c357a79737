package service

import (
	"context"
	"strings"
	"time"

	"squares-server/common/constant"
	"squares-server/common/logger"
	infrds "squares-server/internal/infra/redis"
	"squares-server/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GameConfig 新建比赛参数
type GameConfig struct {
	Sport     string
	HomeTeam  string
	AwayTeam  string
	StartTime int64 // 毫秒时间戳
	EntryFee  decimal.Decimal
	// Payouts 依次为 Q1 / 半场 / Q3 / 终场 的派彩金额
	Payouts  [constant.CheckpointCount]decimal.Decimal
	Inactive bool
	Operator string
	TraceID  string
}

type GridService interface {
	CreateGame(ctx context.Context, cfg GameConfig) (*model.Game, error)
	GetGame(ctx context.Context, gameID int64) (*model.Game, error)
	GetBox(ctx context.Context, gameID int64, row, col int) (*model.Box, error)
	SetActive(ctx context.Context, gameID int64, active bool, operator, traceID string) error
}

type gridService struct{ base }

func NewGridService(db *sqlx.DB, opts ...Option) GridService {
	return &gridService{base: newBase(db, opts...)}
}

func validCell(row, col int) bool {
	return row >= 0 && row < constant.GridSize && col >= 0 && col < constant.GridSize
}

func validateGameConfig(cfg GameConfig) error {
	if strings.TrimSpace(cfg.HomeTeam) == "" || strings.TrimSpace(cfg.AwayTeam) == "" {
		return errorf(ErrValidation, "home_team and away_team required")
	}
	if cfg.StartTime <= 0 {
		return errorf(ErrValidation, "start_time required")
	}
	if cfg.EntryFee.IsNegative() {
		return errorf(ErrValidation, "entry_fee must be >= 0")
	}
	for i, p := range cfg.Payouts {
		if p.IsNegative() {
			return errorf(ErrValidation, "payout %s must be >= 0", constant.CheckpointName(i))
		}
	}
	return nil
}

// CreateGame 创建比赛与 100 个空格子（同一事务，任一失败全部回滚）
func (s *gridService) CreateGame(ctx context.Context, cfg GameConfig) (*model.Game, error) {
	if err := validateGameConfig(cfg); err != nil {
		return nil, err
	}

	tx, txCtx, cancel, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	g := &model.Game{
		Sport:       strings.TrimSpace(cfg.Sport),
		HomeTeam:    strings.TrimSpace(cfg.HomeTeam),
		AwayTeam:    strings.TrimSpace(cfg.AwayTeam),
		StartTime:   cfg.StartTime,
		EntryFee:    cfg.EntryFee.Round(2),
		IsActive:    1,
		PayoutQ1:    cfg.Payouts[constant.CheckpointQ1].Round(2),
		PayoutHalf:  cfg.Payouts[constant.CheckpointHalf].Round(2),
		PayoutQ3:    cfg.Payouts[constant.CheckpointQ3].Round(2),
		PayoutFinal: cfg.Payouts[constant.CheckpointFinal].Round(2),
	}
	if cfg.Inactive {
		g.IsActive = 0
	}
	id, err := model.InsertGame(txCtx, tx, g)
	if err != nil {
		return nil, storageErr("insert game", err)
	}
	if err := model.InsertBoxes(txCtx, tx, id); err != nil {
		return nil, storageErr("insert boxes", err)
	}
	if err := model.WriteAudit(txCtx, tx, id, model.AuditGameCreated, "", "created", cfg.Operator, cfg.TraceID, nil); err != nil {
		return nil, storageErr("write audit", err)
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	logger.InfoCtx(ctx, "game created",
		zap.Int64("game_id", id), zap.String("home", g.HomeTeam), zap.String("away", g.AwayTeam),
		zap.String("entry_fee", g.EntryFee.StringFixed(2)), zap.Int64("start_time", g.StartTime))
	return g, nil
}

func (s *gridService) GetGame(ctx context.Context, gameID int64) (*model.Game, error) {
	g, err := model.GetGame(ctx, s.db, gameID)
	if err != nil {
		return nil, storageErr("get game", notFound(err, "game %d", gameID))
	}
	return g, nil
}

func (s *gridService) GetBox(ctx context.Context, gameID int64, row, col int) (*model.Box, error) {
	if !validCell(row, col) {
		return nil, errorf(ErrValidation, "cell (%d,%d) out of range", row, col)
	}
	b, err := model.GetBox(ctx, s.db, gameID, row, col)
	if err != nil {
		return nil, storageErr("get box", notFound(err, "box (%d,%d) of game %d", row, col, gameID))
	}
	return b, nil
}

// SetActive 开放/关闭比赛
func (s *gridService) SetActive(ctx context.Context, gameID int64, active bool, operator, traceID string) error {
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
	if g.Active() == active {
		return nil
	}
	if _, err := model.SetGameActive(txCtx, tx, gameID, active); err != nil {
		return storageErr("set active", err)
	}
	prev, next := activeLabel(g.Active()), activeLabel(active)
	if err := model.WriteAudit(txCtx, tx, gameID, model.AuditGameActivated, prev, next, operator, traceID, nil); err != nil {
		return storageErr("write audit", err)
	}
	if err := commit(tx); err != nil {
		return err
	}
	invalidateCache(ctx, infrds.GridKey(gameID))
	logger.InfoCtx(ctx, "game active changed", zap.Int64("game_id", gameID), zap.Bool("active", active), zap.String("operator", operator))
	return nil
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

// ClaimBoxTx 在调用方事务中以 CAS 方式认领格子
// 返回 ErrAlreadyOwned / ErrNotFound；成功时返回认领后的格子
func ClaimBoxTx(ctx context.Context, tx sqlx.ExtContext, gameID int64, row, col int, userID int64) (*model.Box, error) {
	n, err := model.ClaimBox(ctx, tx, gameID, row, col, userID)
	if err != nil {
		return nil, storageErr("claim box", err)
	}
	b, err := model.GetBox(ctx, tx, gameID, row, col)
	if err != nil {
		return nil, storageErr("get box", notFound(err, "box (%d,%d) of game %d", row, col, gameID))
	}
	if n == 0 {
		return nil, errorf(ErrAlreadyOwned, "box (%d,%d) of game %d", row, col, gameID)
	}
	return b, nil
}

// assignWindowOpen 号码分配窗口：start - window <= now <= start
func assignWindowOpen(now time.Time, startMs int64, window time.Duration) bool {
	nowMs := now.UnixMilli()
	return nowMs >= startMs-window.Milliseconds() && nowMs <= startMs
}
