package service

import (
	"context"
	"strconv"

	"squares-server/common/logger"
	infrds "squares-server/internal/infra/redis"
	"squares-server/internal/metrics"
	"squares-server/internal/model"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// AssignResult 分配结果：HomeNumbers 为列轴，AwayNumbers 为行轴
type AssignResult struct {
	GameID      int64
	HomeNumbers model.Permutation
	AwayNumbers model.Permutation
}

type NumberService interface {
	AssignNumbers(ctx context.Context, gameID int64, operator, traceID string) (*AssignResult, error)
}

type numberService struct{ base }

func NewNumberService(db *sqlx.DB, opts ...Option) NumberService {
	return &numberService{base: newBase(db, opts...)}
}

// AssignNumbers 为比赛生成两组 0-9 随机排列，每局只允许成功一次
// operator 为 "scheduler" 时视为自动触发
func (s *numberService) AssignNumbers(ctx context.Context, gameID int64, operator, traceID string) (res *AssignResult, err error) {
	trigger := "admin"
	if operator == SchedulerOperator {
		trigger = "scheduler"
	}
	defer func() { metrics.RecordAssign(Kind(err), trigger) }()

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
		return nil, errorf(ErrInvalidState, "game %d inactive", gameID)
	}
	if g.Assigned() {
		return nil, errorf(ErrAlreadyAssigned, "game %d", gameID)
	}
	now := s.clock.Now()
	if !assignWindowOpen(now, g.StartTime, s.settings.AssignWindow) {
		logger.WarnCtx(ctx, "assign outside window",
			zap.Int64("game_id", gameID), zap.Int64("now", now.UnixMilli()), zap.Int64("start_time", g.StartTime))
		return nil, errorf(ErrInvalidState, "game %d not in assignment window", gameID)
	}

	home := model.Permutation(s.shuffler.Permutation())
	away := model.Permutation(s.shuffler.Permutation())

	n, err := model.AssignGameNumbers(txCtx, tx, gameID, home, away)
	if err != nil {
		return nil, storageErr("assign numbers", err)
	}
	if n == 0 {
		return nil, errorf(ErrAlreadyAssigned, "game %d", gameID)
	}

	payload := map[string]any{
		"event":        "numbers_assigned",
		"game_id":      gameID,
		"home_numbers": []int(home),
		"away_numbers": []int(away),
	}
	if err := model.CreateOutbox(txCtx, tx, model.TopicNumbersAssigned, "assign:"+strconv.FormatInt(gameID, 10), payload); err != nil {
		return nil, storageErr("write outbox", err)
	}
	if err := model.WriteAudit(txCtx, tx, gameID, model.AuditNumbersAssigned, "unassigned", "assigned", operator, traceID, payload); err != nil {
		return nil, storageErr("write audit", err)
	}
	if err := commit(tx); err != nil {
		return nil, err
	}

	invalidateCache(ctx, infrds.GridKey(gameID), infrds.WinnersKey(gameID))
	logger.InfoCtx(ctx, "numbers assigned",
		zap.Int64("game_id", gameID), zap.Ints("home", home), zap.Ints("away", away), zap.String("operator", operator))
	return &AssignResult{GameID: gameID, HomeNumbers: home, AwayNumbers: away}, nil
}

// SchedulerOperator 自动分配任务使用的操作人标识
const SchedulerOperator = "scheduler"
