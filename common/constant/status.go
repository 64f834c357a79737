package constant

// account status
const (
	AccountDisabled = 0 // 状态：禁用（不允许任何账变）
	AccountNormal   = 1 // 状态：正常
)

// 账本条目审核状态：只允许 pending -> approved / pending -> rejected
const (
	EntryPending  = "pending"
	EntryApproved = "approved"
	EntryRejected = "rejected"
)

// 提现申请状态
const (
	WithdrawalPending   = "pending"
	WithdrawalApproved  = "approved"
	WithdrawalCompleted = "completed"
	WithdrawalRejected  = "rejected"
)

// 比分检查点：0=Q1 1=半场 2=Q3 3=终场
const (
	CheckpointQ1    = 0
	CheckpointHalf  = 1
	CheckpointQ3    = 2
	CheckpointFinal = 3

	CheckpointCount = 4
)

// GridSize 网格边长（10x10）
const GridSize = 10

var checkpointNames = [CheckpointCount]string{"q1", "half", "q3", "final"}

// CheckpointName 返回检查点名称，越界返回 "unknown"
func CheckpointName(idx int) string {
	if idx < 0 || idx >= CheckpointCount {
		return "unknown"
	}
	return checkpointNames[idx]
}
