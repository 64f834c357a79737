package model

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
)

// 审计事件类型
const (
	AuditNumbersAssigned    int8 = 1
	AuditScoreRecorded      int8 = 2
	AuditPayoutIssued       int8 = 3
	AuditWithdrawalApproved int8 = 4
	AuditWithdrawalRejected int8 = 5
	AuditClaimReversed      int8 = 6
	AuditGameActivated      int8 = 7
	AuditLedgerAdjusted     int8 = 8
	AuditEntryVerified      int8 = 9
	AuditGameCreated        int8 = 10
)

// GameEventAudit 对应 game_event_audit 表（关键状态变更审计）
// subject_id 为比赛ID或提现申请ID，prev_state/next_state 为字符串快照
type GameEventAudit struct {
	ID        int64  `db:"id"`
	SubjectID int64  `db:"subject_id"`
	EventType int8   `db:"event_type"`
	PrevState string `db:"prev_state"`
	NextState string `db:"next_state"`
	Operator  string `db:"operator"`
	Payload   string `db:"payload"`
	TraceID   string `db:"trace_id"`
	CreatedAt int64  `db:"created_at"`
}

// Insert
func (e *GameEventAudit) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	e.CreatedAt = time.Now().UnixMilli()
	sqlStr := "INSERT INTO game_event_audit (subject_id, event_type, prev_state, next_state, operator, payload, trace_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := exec.ExecContext(ctx, sqlStr, e.SubjectID, e.EventType, e.PrevState, e.NextState, e.Operator, e.Payload, e.TraceID, e.CreatedAt)
	return err
}

// WriteAudit 构造并写入一条审计记录，payload 序列化为 JSON
func WriteAudit(ctx context.Context, exec sqlx.ExtContext, subjectID int64, eventType int8, prev, next, operator, traceID string, payload any) error {
	var body string
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = string(b)
	}
	e := &GameEventAudit{
		SubjectID: subjectID, EventType: eventType, PrevState: prev, NextState: next,
		Operator: operator, Payload: body, TraceID: traceID,
	}
	return e.Insert(ctx, exec)
}
