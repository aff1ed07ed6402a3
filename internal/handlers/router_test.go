package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository/memory"
	"github.com/nkiryanov/rewardledger/internal/service/account"
	"github.com/nkiryanov/rewardledger/internal/service/deposit"
	"github.com/nkiryanov/rewardledger/internal/service/membership"
	"github.com/nkiryanov/rewardledger/internal/service/referral"
	"github.com/nkiryanov/rewardledger/internal/service/reward"
	"github.com/nkiryanov/rewardledger/internal/service/tokenmanager"
	"github.com/nkiryanov/rewardledger/internal/service/withdrawal"
	"github.com/nkiryanov/rewardledger/internal/testutil"
)

type testServer struct {
	url     string
	storage *memory.Storage
	tokens  *tokenmanager.TokenManager
	admin   string
}

func newTestServer(t *testing.T, override func(*Services)) *testServer {
	t.Helper()

	storage := memory.NewStorage()
	membershipService := membership.NewService(membership.Config{AllowDemotion: true}, storage, nil, nil, nil)
	referralService := referral.NewService(storage, nil, membershipService, nil, nil)

	services := Services{
		Account:    account.NewService(account.Config{}, storage, nil, nil),
		Reward:     reward.NewService(reward.Config{Rates: reward.FixedRate(testutil.Dec("0.01"))}, storage, nil, nil, nil),
		Withdrawal: withdrawal.NewService(withdrawal.Config{}, storage, nil, nil, nil, nil),
		Deposit:    deposit.NewService(storage, nil, referralService, nil, nil),
		Membership: membershipService,
		Referral:   referralService,
	}
	if override != nil {
		override(&services)
	}

	tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"})
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(services, tokens, metrics.New(), logger.NewNoOpLogger()))
	t.Cleanup(srv.Close)

	s := &testServer{url: srv.URL, storage: storage, tokens: tokens}
	s.admin = s.token(t, uuid.New(), models.RoleAdmin)
	return s
}

func (s *testServer) token(t *testing.T, id uuid.UUID, role models.Role) string {
	t.Helper()
	issued, err := s.tokens.Issue(models.Caller{AccountID: id, Role: role})
	require.NoError(t, err)
	return issued.Value
}

// user creates ledger account with preset state and returns its token
func (s *testServer) user(t *testing.T, opts testutil.AccountOpts) (models.Account, string) {
	t.Helper()
	a := testutil.CreateAccount(t, s.storage, opts)
	return a, s.token(t, a.ID, models.RoleUser)
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.url+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var data map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &data), "body: %s", string(raw))
	}
	return resp.StatusCode, data
}

func (s *testServer) list(t *testing.T, path, token string) []map[string]any {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, s.url+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	return data
}

func requireDecimal(t *testing.T, want string, got any) {
	t.Helper()
	s, ok := got.(string)
	require.True(t, ok, "decimal must be rendered as string, got %v", got)
	require.True(t, decimal.RequireFromString(s).Equal(decimal.RequireFromString(want)), "want %s, got %s", want, s)
}

func requireCode(t *testing.T, wantStatus int, wantCode string, status int, body map[string]any) {
	t.Helper()
	require.Equal(t, wantStatus, status, "body: %v", body)
	require.Equal(t, "service_error", body["error"])
	require.Equal(t, wantCode, body["code"])
}

func TestRouter_Auth(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.user(t, testutil.AccountOpts{})

	status, body := s.do(t, http.MethodGet, "/api/account", "", "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Unauthorized", body["message"])

	status, _ = s.do(t, http.MethodGet, "/api/account", "not-a-token", "")
	require.Equal(t, http.StatusUnauthorized, status)

	status, body = s.do(t, http.MethodGet, "/api/admin/withdrawals/pending", token, "")
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "Forbidden", body["message"])
}

func TestRouter_Account(t *testing.T) {
	t.Run("open account with referrer", func(t *testing.T) {
		s := newTestServer(t, nil)
		referrer, referrerToken := s.user(t, testutil.AccountOpts{})
		id := uuid.New()
		token := s.token(t, id, models.RoleUser)

		status, body := s.do(t, http.MethodPost, "/api/account", token, `{"referrer_id": "`+referrer.ID.String()+`"}`)
		require.Equal(t, http.StatusCreated, status, "body: %v", body)
		require.Equal(t, id.String(), body["id"])
		require.Equal(t, "basic", body["tier"])

		status, body = s.do(t, http.MethodPost, "/api/account", token, `{}`)
		requireCode(t, http.StatusConflict, "ACCOUNT_ALREADY_EXISTS", status, body)

		referrals := s.list(t, "/api/referrals", referrerToken)
		require.Len(t, referrals, 1)
		require.Equal(t, id.String(), referrals[0]["referred_id"])
		require.EqualValues(t, 1, referrals[0]["level"])
		require.Equal(t, "pending", referrals[0]["status"])
	})

	t.Run("unknown referrer", func(t *testing.T) {
		s := newTestServer(t, nil)
		token := s.token(t, uuid.New(), models.RoleUser)

		status, body := s.do(t, http.MethodPost, "/api/account", token, `{"referrer_id": "`+uuid.NewString()+`"}`)

		requireCode(t, http.StatusUnprocessableEntity, "REFERRER_NOT_FOUND", status, body)
	})

	t.Run("overview", func(t *testing.T) {
		s := newTestServer(t, nil)
		_, token := s.user(t, testutil.AccountOpts{Balance: "120", TotalProfit: "30", TotalWithdrawn: "10"})

		status, body := s.do(t, http.MethodGet, "/api/account", token, "")
		require.Equal(t, http.StatusOK, status)

		acc := body["account"].(map[string]any)
		requireDecimal(t, "120", acc["balances"].(map[string]any)["USDT"])
		requireDecimal(t, "20", acc["available_profit"])
		require.Equal(t, "basic", body["tier"].(map[string]any)["tier"])
		require.EqualValues(t, 3, body["today"].(map[string]any)["remaining_tasks"])
	})

	t.Run("overview of missing account", func(t *testing.T) {
		s := newTestServer(t, nil)
		token := s.token(t, uuid.New(), models.RoleUser)

		status, body := s.do(t, http.MethodGet, "/api/account", token, "")

		requireCode(t, http.StatusNotFound, "ACCOUNT_NOT_FOUND", status, body)
	})

	t.Run("admin registers and blocks", func(t *testing.T) {
		s := newTestServer(t, nil)

		status, body := s.do(t, http.MethodPost, "/api/admin/accounts", s.admin, `{}`)
		require.Equal(t, http.StatusCreated, status)
		id := body["id"].(string)

		status, body = s.do(t, http.MethodPut, "/api/admin/accounts/"+id+"/blocked", s.admin, `{"blocked": true}`)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, true, body["blocked"])

		status, body = s.do(t, http.MethodPut, "/api/admin/accounts/"+id+"/blocked", s.admin, `{}`)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "validation_failed", body["error"])

		token := s.token(t, uuid.MustParse(id), models.RoleUser)
		status, body = s.do(t, http.MethodPost, "/api/tasks/complete", token, "")
		requireCode(t, http.StatusForbidden, "ACCOUNT_BLOCKED", status, body)

		status, body = s.do(t, http.MethodGet, "/api/admin/accounts/"+id, s.admin, "")
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, true, body["account"].(map[string]any)["blocked"])
	})

	t.Run("invalid path id", func(t *testing.T) {
		s := newTestServer(t, nil)

		status, body := s.do(t, http.MethodGet, "/api/admin/accounts/not-uuid", s.admin, "")

		requireCode(t, http.StatusBadRequest, "VALIDATION_ERROR", status, body)
	})
}

func TestRouter_Tasks(t *testing.T) {
	t.Run("daily cap", func(t *testing.T) {
		s := newTestServer(t, nil)
		_, token := s.user(t, testutil.AccountOpts{Balance: "100"})

		for i := range 3 {
			status, body := s.do(t, http.MethodPost, "/api/tasks/complete", token, "")
			require.Equal(t, http.StatusOK, status, "body: %v", body)
			require.EqualValues(t, 2-i, body["remaining_tasks"])
			requireDecimal(t, "0.01", body["rate"])
		}

		status, body := s.do(t, http.MethodPost, "/api/tasks/complete", token, "")
		requireCode(t, http.StatusTooManyRequests, "TASKS_EXHAUSTED", status, body)

		status, body = s.do(t, http.MethodGet, "/api/tasks/today", token, "")
		require.Equal(t, http.StatusOK, status)
		require.EqualValues(t, 3, body["completed_tasks"])
		require.EqualValues(t, 0, body["remaining_tasks"])
		requireDecimal(t, "3.0301", body["total_reward"])
	})

	t.Run("below minimum balance", func(t *testing.T) {
		s := newTestServer(t, nil)
		_, token := s.user(t, testutil.AccountOpts{Balance: "49.99"})

		status, body := s.do(t, http.MethodPost, "/api/tasks/complete", token, "")

		requireCode(t, http.StatusUnprocessableEntity, "BELOW_MINIMUM_BALANCE", status, body)
	})

	t.Run("internal errors are hidden", func(t *testing.T) {
		s := newTestServer(t, func(services *Services) {
			services.Reward = failingRewards{}
		})
		_, token := s.user(t, testutil.AccountOpts{})

		status, body := s.do(t, http.MethodPost, "/api/tasks/complete", token, "")

		requireCode(t, http.StatusInternalServerError, "INTERNAL", status, body)
		require.Equal(t, "Internal server error", body["message"])
	})

	t.Run("store details are hidden", func(t *testing.T) {
		s := newTestServer(t, func(services *Services) {
			services.Reward = conflictingRewards{}
		})
		_, token := s.user(t, testutil.AccountOpts{})

		status, body := s.do(t, http.MethodPost, "/api/tasks/complete", token, "")

		requireCode(t, http.StatusServiceUnavailable, "STORE_CONFLICT", status, body)
		require.Equal(t, "store conflict", body["message"])
	})
}

type conflictingRewards struct{}

func (conflictingRewards) CompleteTask(context.Context, uuid.UUID) (reward.Result, error) {
	return reward.Result{}, fmt.Errorf("account 8aa85053-2c1e-4f0c-9a43-5b3b1d1c2f00 version 7 (SQLSTATE 40001): %w", apperrors.ErrStoreConflict)
}

func (conflictingRewards) TodayCounter(context.Context, uuid.UUID) (models.DailyTaskCounter, error) {
	return models.DailyTaskCounter{}, apperrors.ErrStoreConflict
}

type failingRewards struct{}

func (failingRewards) CompleteTask(context.Context, uuid.UUID) (reward.Result, error) {
	return reward.Result{}, errors.New("connection to 10.0.0.7 refused")
}

func (failingRewards) TodayCounter(context.Context, uuid.UUID) (models.DailyTaskCounter, error) {
	return models.DailyTaskCounter{}, errors.New("connection to 10.0.0.7 refused")
}

func TestRouter_Withdrawals(t *testing.T) {
	request := `{"amount": "20", "currency": "USDT", "network": "TRC20", "address": "TXyz"}`

	t.Run("request and reject", func(t *testing.T) {
		s := newTestServer(t, nil)
		_, token := s.user(t, testutil.AccountOpts{Balance: "100", TotalProfit: "50"})

		status, body := s.do(t, http.MethodPost, "/api/withdrawals", token, request)
		require.Equal(t, http.StatusCreated, status, "body: %v", body)
		require.Equal(t, "pending", body["status"])
		require.Equal(t, "TXyz", body["meta"].(map[string]any)["address"])
		id := body["id"].(string)

		status, body = s.do(t, http.MethodPost, "/api/withdrawals", token, request)
		requireCode(t, http.StatusConflict, "ANOTHER_WITHDRAWAL_PENDING", status, body)

		pending := s.list(t, "/api/admin/withdrawals/pending", s.admin)
		require.Len(t, pending, 1)

		status, body = s.do(t, http.MethodPost, "/api/admin/withdrawals/"+id+"/processing", s.admin, "")
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "processing", body["status"])

		status, body = s.do(t, http.MethodPost, "/api/admin/withdrawals/"+id+"/reject", s.admin, `{}`)
		require.Equal(t, http.StatusBadRequest, status, "reason is required")

		status, body = s.do(t, http.MethodPost, "/api/admin/withdrawals/"+id+"/reject", s.admin, `{"reason": "wrong network"}`)
		require.Equal(t, http.StatusOK, status, "body: %v", body)
		require.Equal(t, "rejected", body["status"])
		require.NotEmpty(t, body["reviewed_by"])

		status, body = s.do(t, http.MethodPost, "/api/admin/withdrawals/"+id+"/approve", s.admin, `{}`)
		requireCode(t, http.StatusConflict, "INVALID_STATE_TRANSITION", status, body)

		status, body = s.do(t, http.MethodGet, "/api/account", token, "")
		require.Equal(t, http.StatusOK, status)
		acc := body["account"].(map[string]any)
		requireDecimal(t, "100", acc["balances"].(map[string]any)["USDT"])
		requireDecimal(t, "0", acc["total_withdrawn"])

		withdrawals := s.list(t, "/api/withdrawals", token)
		require.Len(t, withdrawals, 1)
	})

	t.Run("approve", func(t *testing.T) {
		s := newTestServer(t, nil)
		_, token := s.user(t, testutil.AccountOpts{Balance: "100", TotalProfit: "50"})

		_, body := s.do(t, http.MethodPost, "/api/withdrawals", token, request)
		id := body["id"].(string)

		status, body := s.do(t, http.MethodPost, "/api/admin/withdrawals/"+id+"/approve", s.admin, `{"external_ref": "0xabc"}`)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "approved", body["status"])
		require.Equal(t, "0xabc", body["meta"].(map[string]any)["external_ref"])
	})

	t.Run("rules", func(t *testing.T) {
		s := newTestServer(t, nil)
		_, token := s.user(t, testutil.AccountOpts{Balance: "100", TotalProfit: "50", TotalWithdrawn: "10"})

		status, body := s.do(t, http.MethodPost, "/api/withdrawals", token, `{"amount": "45", "currency": "USDT", "address": "TXyz"}`)
		requireCode(t, http.StatusUnprocessableEntity, "EXCEEDS_AVAILABLE_PROFIT", status, body)

		status, body = s.do(t, http.MethodPost, "/api/withdrawals", token, `{"amount": "5", "currency": "USDT", "address": "TXyz"}`)
		requireCode(t, http.StatusUnprocessableEntity, "BELOW_MINIMUM_WITHDRAWAL", status, body)

		status, body = s.do(t, http.MethodPost, "/api/withdrawals", token, `{"amount": "-5", "currency": "USDT", "address": "TXyz"}`)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "validation_failed", body["error"])

		status, body = s.do(t, http.MethodPost, "/api/withdrawals", token, `{"amount": "40", "currency": "USDT", "address": "TXyz"}`)
		require.Equal(t, http.StatusCreated, status, "body: %v", body)
	})
}

func TestRouter_Deposits(t *testing.T) {
	t.Run("approve distributes commission", func(t *testing.T) {
		s := newTestServer(t, nil)
		chain := testutil.CreateChain(t, s.storage, 2)
		parentToken := s.token(t, chain[0].ID, models.RoleUser)
		childToken := s.token(t, chain[1].ID, models.RoleUser)

		status, body := s.do(t, http.MethodPost, "/api/deposits", childToken, `{"amount": "100", "currency": "usdt", "tx_hash": "0x01"}`)
		require.Equal(t, http.StatusCreated, status, "body: %v", body)
		require.Equal(t, "pending", body["status"])
		require.Equal(t, "USDT", body["currency"])
		id := body["id"].(string)

		status, body = s.do(t, http.MethodPost, "/api/admin/deposits/"+id+"/approve", s.admin, "")
		require.Equal(t, http.StatusOK, status, "body: %v", body)
		require.Equal(t, "approved", body["deposit"].(map[string]any)["status"])
		commission := body["commission"].(map[string]any)
		requireDecimal(t, "5", commission["credited"])
		levels := commission["levels"].([]any)
		require.Len(t, levels, 1)
		require.Equal(t, "basic", levels[0].(map[string]any)["tier"])

		status, body = s.do(t, http.MethodGet, "/api/account", parentToken, "")
		require.Equal(t, http.StatusOK, status)
		requireDecimal(t, "5", body["account"].(map[string]any)["total_referral_earnings"])
		require.EqualValues(t, 1, body["active_referrals"])

		deposits := s.list(t, "/api/deposits", childToken)
		require.Len(t, deposits, 1)
		require.Equal(t, "approved", deposits[0]["status"])
	})

	t.Run("reject", func(t *testing.T) {
		s := newTestServer(t, nil)
		_, token := s.user(t, testutil.AccountOpts{})

		_, body := s.do(t, http.MethodPost, "/api/deposits", token, `{"amount": "100", "currency": "USDT"}`)
		id := body["id"].(string)

		status, body := s.do(t, http.MethodPost, "/api/admin/deposits/"+id+"/reject", s.admin, `{"reason": "no transfer"}`)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "rejected", body["status"])
		require.Equal(t, "no transfer", body["meta"].(map[string]any)["reject_reason"])
	})

	t.Run("amount beyond storage", func(t *testing.T) {
		s := newTestServer(t, nil)
		_, token := s.user(t, testutil.AccountOpts{})

		status, body := s.do(t, http.MethodPost, "/api/deposits", token, `{"amount": "1e30", "currency": "USDT"}`)

		requireCode(t, http.StatusBadRequest, "VALIDATION_ERROR", status, body)
	})

	t.Run("approved deposit event", func(t *testing.T) {
		s := newTestServer(t, nil)
		a, _ := s.user(t, testutil.AccountOpts{})

		status, body := s.do(t, http.MethodPost, "/api/admin/deposits/events", s.admin,
			`{"account_id": "`+a.ID.String()+`", "amount": "250.5", "currency": "USDT"}`)
		require.Equal(t, http.StatusCreated, status, "body: %v", body)
		require.Equal(t, "approved", body["deposit"].(map[string]any)["status"])

		stored, err := s.storage.Account().GetAccount(t.Context(), a.ID)
		require.NoError(t, err)
		require.True(t, stored.TotalDeposited.Equal(testutil.Dec("250.5")))
	})

	t.Run("replayed deposit event", func(t *testing.T) {
		s := newTestServer(t, nil)
		a, _ := s.user(t, testutil.AccountOpts{})
		event := `{"account_id": "` + a.ID.String() + `", "amount": "10", "currency": "USDT", "tx_hash": "0xfeed"}`

		status, body := s.do(t, http.MethodPost, "/api/admin/deposits/events", s.admin, event)
		require.Equal(t, http.StatusCreated, status, "body: %v", body)

		status, body = s.do(t, http.MethodPost, "/api/admin/deposits/events", s.admin, event)
		requireCode(t, http.StatusConflict, "DUPLICATE_DEPOSIT", status, body)

		stored, err := s.storage.Account().GetAccount(t.Context(), a.ID)
		require.NoError(t, err)
		require.True(t, stored.TotalDeposited.Equal(testutil.Dec("10")))
	})

	t.Run("manual commission", func(t *testing.T) {
		s := newTestServer(t, nil)
		chain := testutil.CreateChain(t, s.storage, 3)

		status, body := s.do(t, http.MethodPost, "/api/admin/accounts/"+chain[2].ID.String()+"/commission", s.admin,
			`{"amount": "100", "currency": "USDT"}`)
		require.Equal(t, http.StatusOK, status, "body: %v", body)
		requireDecimal(t, "7", body["credited"])
		require.Len(t, body["levels"].([]any), 2)
	})
}

func TestRouter_Tier(t *testing.T) {
	s := newTestServer(t, nil)
	a, token := s.user(t, testutil.AccountOpts{})
	path := "/api/admin/accounts/" + a.ID.String() + "/tier"

	status, body := s.do(t, http.MethodPut, path, s.admin, `{"tier": "mythic"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "decoding_failed", body["error"])

	status, body = s.do(t, http.MethodPut, path, s.admin, `{"tier": "gold"}`)
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	require.Equal(t, "gold", body["tier"])
	require.Equal(t, true, body["tier_assigned"])

	status, body = s.do(t, http.MethodGet, "/api/tier", token, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "gold", body["params"].(map[string]any)["tier"])
	require.EqualValues(t, 8, body["params"].(map[string]any)["daily_tasks"])
	history := body["history"].([]any)
	require.Len(t, history, 1)
	require.Equal(t, "assigned", history[0].(map[string]any)["reason"])

	status, body = s.do(t, http.MethodPut, path, s.admin, `{"tier": null}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "basic", body["tier"])
	require.Equal(t, false, body["tier_assigned"])

	testutil.CreateActiveReferrals(t, s.storage, a.ID, 3)
	status, body = s.do(t, http.MethodPost, path+"/resolve", s.admin, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "silver", body["tier"])
	require.Equal(t, true, body["changed"])
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.user(t, testutil.AccountOpts{})

	status, _ := s.do(t, http.MethodGet, "/api/account", token, "")
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(s.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), `rewardledger_http_requests_total{method="GET",path="GET /api/account",status="200"} 1`)
}
