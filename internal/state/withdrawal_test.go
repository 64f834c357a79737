package state

import (
	"testing"

	"squares-server/common/constant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextWithdrawalState(t *testing.T) {
	cases := []struct {
		cur, evt, want string
		ok             bool
	}{
		{constant.WithdrawalPending, EvtApprove, constant.WithdrawalApproved, true},
		{constant.WithdrawalPending, EvtReject, constant.WithdrawalRejected, true},
		{constant.WithdrawalApproved, EvtComplete, constant.WithdrawalCompleted, true},
		{constant.WithdrawalPending, EvtComplete, constant.WithdrawalPending, false},
		{constant.WithdrawalApproved, EvtReject, constant.WithdrawalApproved, false},
		{constant.WithdrawalCompleted, EvtReject, constant.WithdrawalCompleted, false},
		{constant.WithdrawalRejected, EvtApprove, constant.WithdrawalRejected, false},
	}
	for _, c := range cases {
		got, err := NextWithdrawalState(c.cur, c.evt)
		if c.ok {
			require.NoError(t, err, "%s --%s-->", c.cur, c.evt)
		} else {
			assert.Error(t, err, "%s --%s-->", c.cur, c.evt)
		}
		assert.Equal(t, c.want, got)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(constant.WithdrawalCompleted))
	assert.True(t, IsTerminal(constant.WithdrawalRejected))
	assert.False(t, IsTerminal(constant.WithdrawalPending))
	assert.False(t, IsTerminal(constant.WithdrawalApproved))
}

func TestNextEntryStatus(t *testing.T) {
	s, err := NextEntryStatus(constant.EntryPending, true)
	require.NoError(t, err)
	assert.Equal(t, constant.EntryApproved, s)

	s, err = NextEntryStatus(constant.EntryPending, false)
	require.NoError(t, err)
	assert.Equal(t, constant.EntryRejected, s)

	_, err = NextEntryStatus(constant.EntryApproved, false)
	assert.Error(t, err)
}
