package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// GameScore 对应 game_scores 表；UNIQUE(game_id, checkpoint)
// 无记录 = 该检查点尚无比分（与 0:0 区分）
type GameScore struct {
	GameID     int64 `db:"game_id"`
	Checkpoint int   `db:"checkpoint"`
	HomeScore  int   `db:"home_score"`
	AwayScore  int   `db:"away_score"`
	UpdatedAt  int64 `db:"updated_at"`
}

// UpsertScore 写入或覆盖检查点比分
func UpsertScore(ctx context.Context, exec sqlx.ExtContext, s *GameScore) error {
	now := time.Now().UnixMilli()
	s.UpdatedAt = now

	sqlStr := `INSERT INTO game_scores (game_id, checkpoint, home_score, away_score, updated_at) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE home_score = VALUES(home_score), away_score = VALUES(away_score), updated_at = VALUES(updated_at)`
	_, err := exec.ExecContext(ctx, sqlStr, s.GameID, s.Checkpoint, s.HomeScore, s.AwayScore, now)
	return err
}

// GetScore 查询单个检查点比分（不存在返回 sql.ErrNoRows）
func GetScore(ctx context.Context, q sqlx.QueryerContext, gameID int64, checkpoint int) (*GameScore, error) {
	sqlStr := "SELECT game_id, checkpoint, home_score, away_score, updated_at FROM game_scores WHERE game_id = ? AND checkpoint = ?"
	var s GameScore
	if err := sqlx.GetContext(ctx, q, &s, sqlStr, gameID, checkpoint); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListScores 返回已录入的检查点比分，按检查点排序
func ListScores(ctx context.Context, q sqlx.QueryerContext, gameID int64) ([]GameScore, error) {
	sqlStr := "SELECT game_id, checkpoint, home_score, away_score, updated_at FROM game_scores WHERE game_id = ? ORDER BY checkpoint ASC"
	var list []GameScore
	if err := sqlx.SelectContext(ctx, q, &list, sqlStr, gameID); err != nil {
		return nil, err
	}
	return list, nil
}
