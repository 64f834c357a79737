package constant

// 账变类型（ledger_entries.kind）
const (
	KindPurchase           = "purchase"            // 充值入账（支付渠道回调）
	KindClaimDebit         = "claim-debit"         // 购买格子扣款
	KindPayout             = "payout"              // 检查点派彩
	KindWithdrawalHold     = "withdrawal-hold"     // 提现冻结（申请即扣）
	KindWithdrawalRelease  = "withdrawal-release"  // 提现驳回退回
	KindWithdrawalComplete = "withdrawal-complete" // 提现完成（保留类型，完成时不产生账变）
	KindRefund             = "refund"              // 后台撤销购买退款
	KindAdminAdjustment    = "admin-adjustment"    // 后台调账
)

// 账变类型描述映射
var LedgerKindDesc = map[string]string{
	KindPurchase:           "充值",
	KindClaimDebit:         "购买格子",
	KindPayout:             "派彩",
	KindWithdrawalHold:     "提现冻结",
	KindWithdrawalRelease:  "提现退回",
	KindWithdrawalComplete: "提现完成",
	KindRefund:             "退款",
	KindAdminAdjustment:    "后台调账",
}

// GetLedgerKindDesc 获取账变类型描述
func GetLedgerKindDesc(kind string) string {
	if desc, exists := LedgerKindDesc[kind]; exists {
		return desc
	}
	return "未知类型"
}

// IsValidLedgerKind 验证账变类型是否有效
func IsValidLedgerKind(kind string) bool {
	_, exists := LedgerKindDesc[kind]
	return exists
}

// 账变方向：收入类型金额必须为正，支出类型必须为负；调账两者皆可
var (
	IncomeKinds  = []string{KindPurchase, KindPayout, KindWithdrawalRelease, KindRefund}
	ExpenseKinds = []string{KindClaimDebit, KindWithdrawalHold}
)

// IsIncomeKind 判断是否为收入类型
func IsIncomeKind(kind string) bool {
	for _, k := range IncomeKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// IsExpenseKind 判断是否为支出类型
func IsExpenseKind(kind string) bool {
	for _, k := range ExpenseKinds {
		if k == kind {
			return true
		}
	}
	return false
}
