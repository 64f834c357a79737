package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squares-server/internal/common/response"
	"squares-server/internal/config"
	"squares-server/internal/model"
	"squares-server/internal/service"
)

type fakeClaim struct {
	service.ClaimService
	got service.ClaimInput
	err error
}

func (f *fakeClaim) ClaimBox(_ context.Context, in service.ClaimInput) (*service.Receipt, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &service.Receipt{
		GameID: in.GameID, Row: in.Row, Col: in.Col, UserID: in.UserID,
		Fee: decimal.NewFromInt(10), LedgerEntryID: 9, Balance: decimal.NewFromInt(40), ClaimedAt: 1,
	}, nil
}

type fakeSettlement struct {
	service.SettlementService
	got service.ScoreInput
}

func (f *fakeSettlement) RecordScores(_ context.Context, in service.ScoreInput) (service.WinnerList, error) {
	f.got = in
	return service.WinnerList{{Checkpoint: in.Checkpoint, Name: "q1", HomeScore: in.HomeScore, AwayScore: in.AwayScore, Row: 3, Col: 7, UserID: 42}}, nil
}

type fakeLedger struct {
	service.LedgerService
	approve *bool
}

func (f *fakeLedger) VerifyEntry(_ context.Context, id int64, approve bool, _, _ string) (*model.LedgerEntry, error) {
	f.approve = &approve
	return &model.LedgerEntry{ID: id, UserID: 1, Amount: decimal.NewFromInt(25), Kind: "purchase", Status: "approved"}, nil
}

func newCtx(body string, userID int64, params map[string]string) (*beegocontext.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ctx := beegocontext.NewContext()
	ctx.Reset(rec, req)
	ctx.Input.SetData("trace_id", "t-1")
	if userID > 0 {
		ctx.Input.SetData("user_id", userID)
	}
	for k, v := range params {
		ctx.Input.SetParam(k, v)
	}
	return ctx, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) (response.APIResponse, map[string]interface{}) {
	t.Helper()
	var out response.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	data, _ := out.Data.(map[string]interface{})
	return out, data
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{fmt.Errorf("%w: row 10", service.ErrValidation), 400, response.CodeBadRequest},
		{fmt.Errorf("%w: game 1", service.ErrNotFound), 404, response.CodeNotFound},
		{service.ErrAlreadyOwned, 409, response.CodeAlreadyOwned},
		{service.ErrAlreadyAssigned, 409, response.CodeAlreadyAssigned},
		{service.ErrInvalidState, 409, response.CodeInvalidState},
		{service.ErrInsufficientFunds, 409, response.CodeInsufficientBalance},
		{service.ErrLimitExceeded, 409, response.CodeLimitExceeded},
		{service.ErrDailyLimitExceeded, 409, response.CodeDailyLimitExceeded},
		{service.ErrStorageUnavailable, 503, response.CodeStorageUnavailable},
		{fmt.Errorf("boom"), 500, response.CodeSystemError},
	}
	for _, tc := range cases {
		status, code := errorStatus(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestClaimSuccess(t *testing.T) {
	fc := &fakeClaim{}
	Use(Services{Claim: fc})

	ctx, rec := newCtx(`{"game_id":5,"row":0,"col":7}`, 42, nil)
	c := &ClaimController{}
	c.Init(ctx, "ClaimController", "Claim", c)
	c.Claim()

	assert.Equal(t, 200, rec.Code)
	out, data := decode(t, rec)
	assert.Equal(t, response.CodeSuccess, out.Code)
	assert.Equal(t, "t-1", out.TraceID)
	assert.Equal(t, "10.00", data["fee"])
	assert.Equal(t, "40.00", data["balance"])
	assert.Equal(t, service.ClaimInput{GameID: 5, Row: 0, Col: 7, UserID: 42, TraceID: "t-1"}, fc.got)
}

func TestClaimAlreadyOwned(t *testing.T) {
	Use(Services{Claim: &fakeClaim{err: fmt.Errorf("%w: game 5 (3,7)", service.ErrAlreadyOwned)}})

	ctx, rec := newCtx(`{"game_id":5,"row":3,"col":7}`, 42, nil)
	c := &ClaimController{}
	c.Init(ctx, "ClaimController", "Claim", c)
	c.Claim()

	assert.Equal(t, 409, rec.Code)
	out, _ := decode(t, rec)
	assert.Equal(t, response.CodeAlreadyOwned, out.Code)
}

func TestClaimPausedByFlag(t *testing.T) {
	prev := config.GetCurrent()
	defer config.SetCurrent(prev)
	config.SetCurrent(&config.Config{FeatureFlags: map[string]bool{config.FlagClaimsPaused: true}})

	fc := &fakeClaim{}
	Use(Services{Claim: fc})
	ctx, rec := newCtx(`{"game_id":5,"row":0,"col":7}`, 42, nil)
	c := &ClaimController{}
	c.Init(ctx, "ClaimController", "Claim", c)
	c.Claim()

	assert.Equal(t, 503, rec.Code)
	out, _ := decode(t, rec)
	assert.Equal(t, response.CodeClaimsPaused, out.Code)
	assert.Zero(t, fc.got.GameID, "service not reached")
}

func TestClaimRejectsMissingCell(t *testing.T) {
	fc := &fakeClaim{}
	Use(Services{Claim: fc})

	for _, body := range []string{`{"game_id":5,"col":7}`, `{"game_id":5,"row":10,"col":7}`, `{"row":1,"col":1}`, `not json`} {
		ctx, rec := newCtx(body, 42, nil)
		c := &ClaimController{}
		c.Init(ctx, "ClaimController", "Claim", c)
		c.Claim()
		assert.Equal(t, 400, rec.Code, body)
	}
	assert.Zero(t, fc.got.GameID)
}

func TestAdminScores(t *testing.T) {
	fs := &fakeSettlement{}
	Use(Services{Settlement: fs})

	ctx, rec := newCtx(`{"checkpoint":0,"home_score":0,"away_score":0}`, 0, map[string]string{":id": "5"})
	c := &AdminGameController{}
	c.Init(ctx, "AdminGameController", "Scores", c)
	c.Scores()

	assert.Equal(t, 200, rec.Code)
	_, data := decode(t, rec)
	assert.Equal(t, "q1", data["checkpoint"])
	assert.Equal(t, int64(5), fs.got.GameID)
	assert.Equal(t, "admin", fs.got.Operator)
	winners, _ := data["winners"].([]interface{})
	assert.Len(t, winners, 1)
}

func TestAdminScoresRequiresBothScores(t *testing.T) {
	fs := &fakeSettlement{}
	Use(Services{Settlement: fs})

	ctx, rec := newCtx(`{"checkpoint":1,"home_score":7}`, 0, map[string]string{":id": "5"})
	c := &AdminGameController{}
	c.Init(ctx, "AdminGameController", "Scores", c)
	c.Scores()

	assert.Equal(t, 400, rec.Code)
	assert.Zero(t, fs.got.GameID)
}

func TestAdminVerify(t *testing.T) {
	fl := &fakeLedger{}
	Use(Services{Ledger: fl})

	ctx, rec := newCtx(`{"approve":false}`, 0, map[string]string{":id": "12"})
	c := &AdminWalletController{}
	c.Init(ctx, "AdminWalletController", "Verify", c)
	c.Verify()

	assert.Equal(t, 200, rec.Code)
	require.NotNil(t, fl.approve)
	assert.False(t, *fl.approve)

	ctx, rec = newCtx(`{}`, 0, map[string]string{":id": "12"})
	c = &AdminWalletController{}
	c.Init(ctx, "AdminWalletController", "Verify", c)
	c.Verify()
	assert.Equal(t, 400, rec.Code)
}

func TestBadIDParam(t *testing.T) {
	ctx, rec := newCtx(``, 0, map[string]string{":id": "abc"})
	c := &GameController{}
	c.Init(ctx, "GameController", "Grid", c)
	c.Grid()
	assert.Equal(t, 400, rec.Code)
}
