package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/rewardledger/internal/handlers"
	"github.com/nkiryanov/rewardledger/internal/lock"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
	"github.com/nkiryanov/rewardledger/internal/repository/postgres"
	"github.com/nkiryanov/rewardledger/internal/retry"
	"github.com/nkiryanov/rewardledger/internal/service/account"
	"github.com/nkiryanov/rewardledger/internal/service/deposit"
	"github.com/nkiryanov/rewardledger/internal/service/membership"
	"github.com/nkiryanov/rewardledger/internal/service/referral"
	"github.com/nkiryanov/rewardledger/internal/service/reward"
	"github.com/nkiryanov/rewardledger/internal/service/tokenmanager"
	"github.com/nkiryanov/rewardledger/internal/service/withdrawal"
)

const SecretKey = "test-secret"

// Server is the whole application on top of real postgres storage
type Server struct {
	URL     string
	Storage repository.Storage
	Metrics *metrics.Metrics

	tokens *tokenmanager.TokenManager
}

// Serve wires all services like the binary does and starts test http server
func Serve(t *testing.T, pool *pgxpool.Pool, rates reward.RateSource) *Server {
	t.Helper()

	storage := postgres.NewStorage(pool)
	m := metrics.New()
	log := logger.NewNoOpLogger()
	retrier := retry.New(retry.Config{
		OnRetry: func(int, error) { m.RecordConflictRetry() },
	})

	membershipService := membership.NewService(membership.Config{AllowDemotion: true}, storage, retrier, log, m)
	referralService := referral.NewService(storage, retrier, membershipService, log, m)

	services := handlers.Services{
		Account:    account.NewService(account.Config{Tiers: membershipService.Policy()}, storage, retrier, log),
		Reward:     reward.NewService(reward.Config{Rates: rates, Tiers: membershipService.Policy()}, storage, retrier, log, m),
		Withdrawal: withdrawal.NewService(withdrawal.Config{}, storage, retrier, lock.NewLocalLocker(), log, m),
		Deposit:    deposit.NewService(storage, retrier, referralService, log, m),
		Membership: membershipService,
		Referral:   referralService,
	}

	tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: SecretKey})
	require.NoError(t, err, "token manager should be created without errors")

	srv := httptest.NewServer(handlers.NewRouter(services, tokens, m, log))
	t.Cleanup(srv.Close)

	return &Server{URL: srv.URL, Storage: storage, Metrics: m, tokens: tokens}
}

func (s *Server) Token(t *testing.T, id uuid.UUID, role models.Role) string {
	t.Helper()
	issued, err := s.tokens.Issue(models.Caller{AccountID: id, Role: role})
	require.NoError(t, err, "failed to issue token")
	return issued.Value
}

// Do sends JSON request and decodes JSON response into out (if not nil)
func (s *Server) Do(t *testing.T, method, path, token string, in any, out any) int {
	t.Helper()

	var body io.Reader
	if in != nil {
		d, err := json.Marshal(in)
		require.NoError(t, err, "failed to marshal request")
		body = bytes.NewReader(d)
	}

	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err, "failed to create request")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "failed to send request")
	defer resp.Body.Close() // nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	if out != nil && len(raw) > 0 {
		require.NoErrorf(t, json.Unmarshal(raw, out), "not expected response body: %s", string(raw))
	}
	return resp.StatusCode
}

// Decimal fields are serialized as JSON strings
func RequireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}
