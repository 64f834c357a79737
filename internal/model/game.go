package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"squares-server/common/constant"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Game 对应 games 表
// is_active: 0=关闭 1=开放（仅开放时允许抢格子、分配号码、录入比分）
// numbers_assigned: 0=未分配 1=已分配（home_numbers/away_numbers 同时写入，之后不可修改）
type Game struct {
	ID              int64           `db:"id"`
	Sport           string          `db:"sport"`
	HomeTeam        string          `db:"home_team"`
	AwayTeam        string          `db:"away_team"`
	StartTime       int64           `db:"start_time"` // 开赛时间（13位毫秒时间戳）
	EntryFee        decimal.Decimal `db:"entry_fee"`  // 每格价格，0=免费局
	IsActive        int8            `db:"is_active"`
	NumbersAssigned int8            `db:"numbers_assigned"`
	HomeNumbers     Permutation     `db:"home_numbers"` // 列坐标 -> 主队个位数
	AwayNumbers     Permutation     `db:"away_numbers"` // 行坐标 -> 客队个位数
	PayoutQ1        decimal.Decimal `db:"payout_q1"`
	PayoutHalf      decimal.Decimal `db:"payout_half"`
	PayoutQ3        decimal.Decimal `db:"payout_q3"`
	PayoutFinal     decimal.Decimal `db:"payout_final"`
	CreatedAt       int64           `db:"created_at"`
	UpdatedAt       int64           `db:"updated_at"`
}

func (g *Game) Active() bool   { return g.IsActive == 1 }
func (g *Game) Assigned() bool { return g.NumbersAssigned == 1 }
func (g *Game) Free() bool     { return !g.EntryFee.IsPositive() }

// Payout 返回检查点对应的派彩金额
func (g *Game) Payout(checkpoint int) decimal.Decimal {
	switch checkpoint {
	case constant.CheckpointQ1:
		return g.PayoutQ1
	case constant.CheckpointHalf:
		return g.PayoutHalf
	case constant.CheckpointQ3:
		return g.PayoutQ3
	case constant.CheckpointFinal:
		return g.PayoutFinal
	}
	return decimal.Zero
}

const gameColumns = `id, sport, home_team, away_team, start_time, entry_fee, is_active, numbers_assigned,
	home_numbers, away_numbers, payout_q1, payout_half, payout_q3, payout_final, created_at, updated_at`

// InsertGame 新建比赛（号码未分配），返回自增ID；请与 InsertBoxes 在同一事务中调用
func InsertGame(ctx context.Context, exec sqlx.ExtContext, g *Game) (int64, error) {
	now := time.Now().UnixMilli()
	g.CreatedAt, g.UpdatedAt = now, now

	sqlStr := `INSERT INTO games (sport, home_team, away_team, start_time, entry_fee, is_active, numbers_assigned,
		payout_q1, payout_half, payout_q3, payout_final, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`
	res, err := exec.ExecContext(ctx, sqlStr, g.Sport, g.HomeTeam, g.AwayTeam, g.StartTime, g.EntryFee, g.IsActive,
		g.PayoutQ1, g.PayoutHalf, g.PayoutQ3, g.PayoutFinal, now, now)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	g.ID = id
	return id, nil
}

// GetGame 无锁读取
func GetGame(ctx context.Context, q sqlx.QueryerContext, gameID int64) (*Game, error) {
	return getGame(ctx, q, gameID, "")
}

// GetGameForUpdate 排他锁读取（分配号码、结算），必须在事务中调用
func GetGameForUpdate(ctx context.Context, q sqlx.QueryerContext, gameID int64) (*Game, error) {
	return getGame(ctx, q, gameID, " FOR UPDATE")
}

// GetGameForShare 共享锁读取（抢格子），与分配号码/结算互斥，但抢格子之间互不阻塞
func GetGameForShare(ctx context.Context, q sqlx.QueryerContext, gameID int64) (*Game, error) {
	return getGame(ctx, q, gameID, " LOCK IN SHARE MODE")
}

func getGame(ctx context.Context, q sqlx.QueryerContext, gameID int64, lock string) (*Game, error) {
	sqlStr := "SELECT " + gameColumns + " FROM games WHERE id = ?" + lock
	var g Game
	if err := sqlx.GetContext(ctx, q, &g, sqlStr, gameID); err != nil {
		return nil, err
	}
	return &g, nil
}

// AssignGameNumbers 一次性写入两组排列并标记已分配；
// numbers_assigned = 0 作为守卫条件，返回受影响行数（0 表示已被分配）
func AssignGameNumbers(ctx context.Context, exec sqlx.ExtContext, gameID int64, home, away Permutation) (int64, error) {
	if !home.Valid() || !away.Valid() {
		return 0, fmt.Errorf("invalid permutation: home=%v away=%v", home, away)
	}
	sqlStr := `UPDATE games SET home_numbers = ?, away_numbers = ?, numbers_assigned = 1, updated_at = ?
		WHERE id = ? AND numbers_assigned = 0`
	res, err := exec.ExecContext(ctx, sqlStr, home, away, time.Now().UnixMilli(), gameID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetGameActive 开放/关闭比赛
func SetGameActive(ctx context.Context, exec sqlx.ExtContext, gameID int64, active bool) (int64, error) {
	flag := 0
	if active {
		flag = 1
	}
	res, err := exec.ExecContext(ctx, "UPDATE games SET is_active = ?, updated_at = ? WHERE id = ?",
		flag, time.Now().UnixMilli(), gameID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListAssignableGameIDs 查询进入分配窗口但尚未分配号码的开放比赛
// 条件：start_time - windowMs <= now <= start_time
func ListAssignableGameIDs(ctx context.Context, q sqlx.QueryerContext, nowMs, windowMs int64, limit int) ([]int64, error) {
	sqlStr := `SELECT id FROM games
		WHERE is_active = 1 AND numbers_assigned = 0 AND start_time >= ? AND start_time <= ?
		ORDER BY start_time ASC LIMIT ?`
	var ids []int64
	if err := sqlx.SelectContext(ctx, q, &ids, sqlStr, nowMs, nowMs+windowMs, limit); err != nil {
		return nil, err
	}
	return ids, nil
}

// boxPlaceholders 生成 100 行 "(?, ?, ?, ?)" 占位符
func boxPlaceholders(n int) string {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = "(?, ?, ?, ?)"
	}
	return strings.Join(rows, ", ")
}

// InsertBoxes 为比赛批量创建 100 个无主格子（单条多值 INSERT）
func InsertBoxes(ctx context.Context, exec sqlx.ExtContext, gameID int64) error {
	n := constant.GridSize * constant.GridSize
	args := make([]interface{}, 0, n*4)
	now := time.Now().UnixMilli()
	for r := 0; r < constant.GridSize; r++ {
		for c := 0; c < constant.GridSize; c++ {
			args = append(args, gameID, r, c, now)
		}
	}
	sqlStr := "INSERT INTO boxes (game_id, row_idx, col_idx, created_at) VALUES " + boxPlaceholders(n)
	res, err := exec.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected != int64(n) {
		return fmt.Errorf("insert boxes: expected %d rows, got %d", n, affected)
	}
	return nil
}
