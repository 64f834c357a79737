package state

import (
	"fmt"

	"squares-server/common/constant"
)

// NextEntryStatus 账本条目审核：仅允许 pending -> approved / rejected
func NextEntryStatus(cur string, approve bool) (string, error) {
	if cur != constant.EntryPending {
		return cur, fmt.Errorf("invalid transition: entry already %s", cur)
	}
	if approve {
		return constant.EntryApproved, nil
	}
	return constant.EntryRejected, nil
}
