package service

import (
	"context"
	"encoding/json"
	"time"

	"squares-server/common/constant"
	"squares-server/common/logger"
	"squares-server/internal/config"
	infrds "squares-server/internal/infra/redis"
	"squares-server/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 读缓存默认 TTL；写路径提交后主动删除，TTL 仅作兜底，可由 thresholds 热更新
const defaultCacheTTL = 30 * time.Second

func gridCacheTTL() time.Duration {
	return config.ThresholdSeconds(config.ThresholdGridCacheTTLSec, defaultCacheTTL)
}

func winnersCacheTTL() time.Duration {
	return config.ThresholdSeconds(config.ThresholdWinnersCacheTTLSec, defaultCacheTTL)
}

// Cell 格子归属快照，UserID=0 表示未认领
type Cell struct {
	Row    int   `json:"row"`
	Col    int   `json:"col"`
	UserID int64 `json:"user_id"`
}

// OwnershipMap 整局归属图
type OwnershipMap struct {
	GameID      int64     `json:"game_id"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	StartTime   int64     `json:"start_time"`
	EntryFee    string    `json:"entry_fee"`
	Active      bool      `json:"active"`
	Assigned    bool      `json:"assigned"`
	HomeNumbers []int     `json:"home_numbers,omitempty"`
	AwayNumbers []int     `json:"away_numbers,omitempty"`
	Claimed     int       `json:"claimed"`
	Cells       [][]int64 `json:"cells"`
}

// Owner 返回 (row, col) 的归属用户，0 表示未认领
func (m *OwnershipMap) Owner(row, col int) int64 {
	if row < 0 || row >= len(m.Cells) || col < 0 || col >= len(m.Cells[row]) {
		return 0
	}
	return m.Cells[row][col]
}

type QueryService interface {
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	OwnershipMap(ctx context.Context, gameID int64) (*OwnershipMap, error)
	LedgerHistory(ctx context.Context, f model.LedgerFilter) ([]model.LedgerEntry, error)
	Winners(ctx context.Context, gameID int64) (WinnerList, error)
}

type queryService struct {
	base
	ledger LedgerService
}

func NewQueryService(db *sqlx.DB, opts ...Option) QueryService {
	return &queryService{base: newBase(db, opts...), ledger: NewLedgerService(db, opts...)}
}

func (s *queryService) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.ledger.Balance(ctx, userID)
}

func (s *queryService) LedgerHistory(ctx context.Context, f model.LedgerFilter) ([]model.LedgerEntry, error) {
	return s.ledger.History(ctx, f)
}

func (s *queryService) OwnershipMap(ctx context.Context, gameID int64) (*OwnershipMap, error) {
	var cached OwnershipMap
	if cacheGet(ctx, infrds.GridKey(gameID), &cached) {
		return &cached, nil
	}

	g, err := model.GetGame(ctx, s.db, gameID)
	if err != nil {
		return nil, storageErr("get game", notFound(err, "game %d", gameID))
	}
	boxes, err := model.ListBoxes(ctx, s.db, gameID)
	if err != nil {
		return nil, storageErr("list boxes", err)
	}
	m := BuildOwnershipMap(g, boxes)
	cacheSet(ctx, infrds.GridKey(gameID), m, gridCacheTTL())
	return m, nil
}

// BuildOwnershipMap 由比赛与格子列表构造归属图
func BuildOwnershipMap(g *model.Game, boxes []model.Box) *OwnershipMap {
	m := &OwnershipMap{
		GameID:    g.ID,
		HomeTeam:  g.HomeTeam,
		AwayTeam:  g.AwayTeam,
		StartTime: g.StartTime,
		EntryFee:  g.EntryFee.StringFixed(2),
		Active:    g.Active(),
		Assigned:  g.Assigned(),
		Cells:     make([][]int64, constant.GridSize),
	}
	if g.Assigned() {
		m.HomeNumbers = g.HomeNumbers
		m.AwayNumbers = g.AwayNumbers
	}
	for i := range m.Cells {
		m.Cells[i] = make([]int64, constant.GridSize)
	}
	for _, b := range boxes {
		if !b.Owned() || !validCell(b.RowIdx, b.ColIdx) {
			continue
		}
		m.Cells[b.RowIdx][b.ColIdx] = b.OwnerID.Int64
		m.Claimed++
	}
	return m
}

func (s *queryService) Winners(ctx context.Context, gameID int64) (WinnerList, error) {
	var cached WinnerList
	if cacheGet(ctx, infrds.WinnersKey(gameID), &cached) {
		return cached, nil
	}
	g, err := model.GetGame(ctx, s.db, gameID)
	if err != nil {
		return nil, storageErr("get game", notFound(err, "game %d", gameID))
	}
	wl, err := resolveGameWinners(ctx, s.db, g)
	if err != nil {
		return nil, err
	}
	cacheSet(ctx, infrds.WinnersKey(gameID), wl, winnersCacheTTL())
	return wl, nil
}

// cacheGet/cacheSet Redis 不可用时静默降级为直读数据库
func cacheGet(ctx context.Context, key string, dst any) bool {
	r := infrds.Client()
	if r == nil {
		return false
	}
	bs, err := r.Get(ctx, key).Bytes()
	if err != nil || len(bs) == 0 {
		return false
	}
	if err := json.Unmarshal(bs, dst); err != nil {
		return false
	}
	logger.DebugCtx(ctx, "cache hit", zap.String("key", key))
	return true
}

func cacheSet(ctx context.Context, key string, v any, ttl time.Duration) {
	r := infrds.Client()
	if r == nil {
		return
	}
	if b, err := json.Marshal(v); err == nil {
		_ = r.Set(ctx, key, b, ttl).Err()
	}
}
