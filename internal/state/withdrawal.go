package state

import (
	"fmt"

	"squares-server/common/constant"
)

// 提现事件
const (
	EvtApprove  = "approve"
	EvtComplete = "complete"
	EvtReject   = "reject"
)

// NextWithdrawalState 根据当前状态与事件计算下一个状态，非法转换报错
// pending --approve--> approved --complete--> completed
// pending --reject--> rejected
func NextWithdrawalState(cur, evt string) (string, error) {
	switch cur {
	case constant.WithdrawalPending:
		switch evt {
		case EvtApprove:
			return constant.WithdrawalApproved, nil
		case EvtReject:
			return constant.WithdrawalRejected, nil
		}
	case constant.WithdrawalApproved:
		if evt == EvtComplete {
			return constant.WithdrawalCompleted, nil
		}
	}
	return cur, fmt.Errorf("invalid transition: %s --%s--> ?", cur, evt)
}

// IsTerminal completed / rejected 为终态
func IsTerminal(s string) bool {
	return s == constant.WithdrawalCompleted || s == constant.WithdrawalRejected
}
