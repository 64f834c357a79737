package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"github.com/shopspring/decimal"

	"squares-server/common/constant"
	money "squares-server/common/helper"
)

// IsJSONContentType 判断是否为 JSON 请求
func IsJSONContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.Contains(ct, "json")
}

// 默认输入保护参数
const (
	defaultJSONMaxBytes int64         = 1 << 20 // 1MB
	defaultParseTimeout time.Duration = 1 * time.Second
)

type deadlineReader struct {
	r        io.Reader
	deadline time.Time
}

func (dr *deadlineReader) Read(p []byte) (int, error) {
	if time.Now().After(dr.deadline) {
		return 0, fmt.Errorf("read timeout")
	}
	return dr.r.Read(p)
}

// jsonBodyReader 在 JSON 分支下为请求体增加大小限制与解析超时保护
func jsonBodyReader(ctx *beegocontext.Context) io.Reader {
	lr := io.LimitReader(ctx.Request.Body, defaultJSONMaxBytes)
	return &deadlineReader{r: lr, deadline: time.Now().Add(defaultParseTimeout)}
}

// GetTraceID 统一提取 trace_id：优先从中间件注入的数据取，其次从常见请求头降级
func GetTraceID(ctx *beegocontext.Context) string {
	if v := ctx.Input.GetData("trace_id"); v != nil {
		return fmt.Sprint(v)
	}
	if h := strings.TrimSpace(ctx.Input.Header("X-Trace-ID")); h != "" {
		return h
	}
	if h := strings.TrimSpace(ctx.Input.Header("Trace-Id")); h != "" {
		return h
	}
	return ""
}

// UserID 取网关认证后由中间件注入的用户 ID；未注入返回 0
func UserID(ctx *beegocontext.Context) int64 {
	if v, ok := ctx.Input.GetData("user_id").(int64); ok {
		return v
	}
	return 0
}

// Operator 管理接口的操作人（X-Operator 头，缺省 "admin"）
func Operator(ctx *beegocontext.Context) string {
	if op := strings.TrimSpace(ctx.Input.Header("X-Operator")); op != "" && len(op) <= 64 {
		return op
	}
	return "admin"
}

// ParamInt64 读取正整数路由参数，如 ":id"
func ParamInt64(ctx *beegocontext.Context, key string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(ctx.Input.Param(key)), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// QueryUint 读取非负整数查询参数，缺省返回 0
func QueryUint(ctx *beegocontext.Context, key string) (uint, bool) {
	s := strings.TrimSpace(ctx.Input.Query(key))
	if s == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(n), true
}

// parseByContentType 按 Content-Type 选择解析函数，减少重复 if/else 分支
func parseByContentType[T any](ctx *beegocontext.Context,
	jsonParser func(io.Reader) (T, bool, string),
	formParser func(*beegocontext.Context) (T, bool, string),
) (T, bool, string) {
	ct := ctx.Input.Header("Content-Type")
	if IsJSONContentType(ct) {
		return jsonParser(jsonBodyReader(ctx))
	}
	return formParser(ctx)
}

// decodeJSON 通用 JSON 解析；管理接口只接受 JSON
func decodeJSON[T any](r io.Reader) (T, bool, string) {
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, false, "invalid json body"
	}
	return out, true, ""
}

func parseJSONOnly[T any](ctx *beegocontext.Context) (T, bool, string) {
	return parseByContentType(ctx, decodeJSON[T], func(*beegocontext.Context) (T, bool, string) {
		var zero T
		return zero, false, "content-type must be application/json"
	})
}

func formInt(ctx *beegocontext.Context, key string) (*int, bool) {
	s := strings.TrimSpace(ctx.Input.Query(key))
	if s == "" {
		return nil, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, false
	}
	return &n, true
}

// validCell 行列均为 0..9
func validCell(row, col *int) bool {
	return row != nil && col != nil &&
		*row >= 0 && *row < constant.GridSize && *col >= 0 && *col < constant.GridSize
}

// -------- Claim helpers --------

// ClaimParsed 抢格子入参；row/col 使用指针区分"缺失"与 0
type ClaimParsed struct {
	GameID int64 `json:"game_id"`
	Row    *int  `json:"row"`
	Col    *int  `json:"col"`
}

func ParseClaimFromForm(ctx *beegocontext.Context) (ClaimParsed, bool, string) {
	var out ClaimParsed
	gid, err := strconv.ParseInt(strings.TrimSpace(ctx.Input.Query("game_id")), 10, 64)
	if err != nil {
		return ClaimParsed{}, false, "game_id must be integer"
	}
	out.GameID = gid
	var ok bool
	if out.Row, ok = formInt(ctx, "row"); !ok {
		return ClaimParsed{}, false, "row must be integer"
	}
	if out.Col, ok = formInt(ctx, "col"); !ok {
		return ClaimParsed{}, false, "col must be integer"
	}
	return out, true, ""
}

func ValidateClaim(in *ClaimParsed) (bool, string) {
	if in.GameID <= 0 {
		return false, "game_id required"
	}
	if !validCell(in.Row, in.Col) {
		return false, "row and col must be 0-9"
	}
	return true, ""
}

// ParseAndValidateClaim 按 Content-Type 自动解析并做统一校验
func ParseAndValidateClaim(ctx *beegocontext.Context) (ClaimParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, decodeJSON[ClaimParsed], ParseClaimFromForm)
	if !ok {
		return ClaimParsed{}, false, msg
	}
	if ok, msg := ValidateClaim(&out); !ok {
		return ClaimParsed{}, false, msg
	}
	return out, true, ""
}

// -------- Withdrawal helpers --------

type WithdrawalParsed struct {
	Amount      string `json:"amount"`
	Destination string `json:"destination"`

	AmountDec decimal.Decimal `json:"-"`
}

func ParseWithdrawalFromForm(ctx *beegocontext.Context) (WithdrawalParsed, bool, string) {
	return WithdrawalParsed{
		Amount:      strings.TrimSpace(ctx.Input.Query("amount")),
		Destination: strings.TrimSpace(ctx.Input.Query("destination")),
	}, true, ""
}

func ValidateWithdrawal(in *WithdrawalParsed) (bool, string) {
	d, err := money.ParseMoney(in.Amount)
	if err != nil || !d.IsPositive() {
		return false, "amount must be positive with up to 2 decimals"
	}
	in.Destination = strings.TrimSpace(in.Destination)
	if in.Destination == "" || len(in.Destination) > 128 {
		return false, "destination required (max 128 chars)"
	}
	in.AmountDec = d
	return true, ""
}

func ParseAndValidateWithdrawal(ctx *beegocontext.Context) (WithdrawalParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, decodeJSON[WithdrawalParsed], ParseWithdrawalFromForm)
	if !ok {
		return WithdrawalParsed{}, false, msg
	}
	if ok, msg := ValidateWithdrawal(&out); !ok {
		return WithdrawalParsed{}, false, msg
	}
	return out, true, ""
}

// -------- Admin helpers --------

// GameParsed 新建比赛；金额字段为字符串
type GameParsed struct {
	Sport     string `json:"sport"`
	HomeTeam  string `json:"home_team"`
	AwayTeam  string `json:"away_team"`
	StartTime int64  `json:"start_time"`
	EntryFee  string `json:"entry_fee"`
	PayoutQ1  string `json:"payout_q1"`
	PayoutQ2  string `json:"payout_half"`
	PayoutQ3  string `json:"payout_q3"`
	PayoutQ4  string `json:"payout_final"`
	Inactive  bool   `json:"inactive"`

	Fee     decimal.Decimal                           `json:"-"`
	Payouts [constant.CheckpointCount]decimal.Decimal `json:"-"`
}

func ValidateGame(in *GameParsed) (bool, string) {
	if strings.TrimSpace(in.HomeTeam) == "" || strings.TrimSpace(in.AwayTeam) == "" {
		return false, "home_team and away_team required"
	}
	if len(in.Sport) > 32 || len(in.HomeTeam) > 64 || len(in.AwayTeam) > 64 {
		return false, "invalid request"
	}
	if in.StartTime <= 0 {
		return false, "start_time (unix ms) required"
	}
	fee := strings.TrimSpace(in.EntryFee)
	if fee == "" {
		fee = "0"
	}
	d, err := money.ParseMoney(fee)
	if err != nil {
		return false, "entry_fee must be numeric with up to 2 decimals"
	}
	in.Fee = d
	for i, s := range []string{in.PayoutQ1, in.PayoutQ2, in.PayoutQ3, in.PayoutQ4} {
		if strings.TrimSpace(s) == "" {
			s = "0"
		}
		p, err := money.ParseMoney(s)
		if err != nil {
			return false, "payouts must be numeric with up to 2 decimals"
		}
		in.Payouts[i] = p
	}
	return true, ""
}

func ParseAndValidateGame(ctx *beegocontext.Context) (GameParsed, bool, string) {
	out, ok, msg := parseJSONOnly[GameParsed](ctx)
	if !ok {
		return GameParsed{}, false, msg
	}
	if ok, msg := ValidateGame(&out); !ok {
		return GameParsed{}, false, msg
	}
	return out, true, ""
}

// ScoresParsed 某检查点比分；checkpoint 0=Q1 1=半场 2=Q3 3=终场
type ScoresParsed struct {
	Checkpoint int  `json:"checkpoint"`
	HomeScore  *int `json:"home_score"`
	AwayScore  *int `json:"away_score"`
}

func ValidateScores(in *ScoresParsed) (bool, string) {
	if in.Checkpoint < 0 || in.Checkpoint >= constant.CheckpointCount {
		return false, "checkpoint must be 0-3"
	}
	if in.HomeScore == nil || in.AwayScore == nil || *in.HomeScore < 0 || *in.AwayScore < 0 {
		return false, "home_score and away_score must be non-negative integers"
	}
	return true, ""
}

func ParseAndValidateScores(ctx *beegocontext.Context) (ScoresParsed, bool, string) {
	out, ok, msg := parseJSONOnly[ScoresParsed](ctx)
	if !ok {
		return ScoresParsed{}, false, msg
	}
	if ok, msg := ValidateScores(&out); !ok {
		return ScoresParsed{}, false, msg
	}
	return out, true, ""
}

// CellParsed 后台撤销认领
type CellParsed struct {
	Row *int `json:"row"`
	Col *int `json:"col"`
}

func ParseAndValidateCell(ctx *beegocontext.Context) (CellParsed, bool, string) {
	out, ok, msg := parseJSONOnly[CellParsed](ctx)
	if !ok {
		return CellParsed{}, false, msg
	}
	if !validCell(out.Row, out.Col) {
		return CellParsed{}, false, "row and col must be 0-9"
	}
	return out, true, ""
}

// AdjustParsed 后台调账，amount 可为负
type AdjustParsed struct {
	UserID      int64  `json:"user_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`

	AmountDec decimal.Decimal `json:"-"`
}

func ValidateAdjust(in *AdjustParsed) (bool, string) {
	if in.UserID <= 0 {
		return false, "user_id required"
	}
	d, err := money.ParseSignedMoney(in.Amount)
	if err != nil || d.IsZero() {
		return false, "amount must be non-zero with up to 2 decimals"
	}
	if len(in.Description) > 255 {
		return false, "description too long"
	}
	in.AmountDec = d
	return true, ""
}

func ParseAndValidateAdjust(ctx *beegocontext.Context) (AdjustParsed, bool, string) {
	out, ok, msg := parseJSONOnly[AdjustParsed](ctx)
	if !ok {
		return AdjustParsed{}, false, msg
	}
	if ok, msg := ValidateAdjust(&out); !ok {
		return AdjustParsed{}, false, msg
	}
	return out, true, ""
}

// FlagParsed 布尔开关类请求：{"active": true} / {"approve": false}
type FlagParsed struct {
	Active  *bool `json:"active"`
	Approve *bool `json:"approve"`
}

func ParseFlag(ctx *beegocontext.Context) (FlagParsed, bool, string) {
	return parseJSONOnly[FlagParsed](ctx)
}
