package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/rewardledger/internal/handlers/middleware"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/service/account"
	"github.com/nkiryanov/rewardledger/internal/service/deposit"
	"github.com/nkiryanov/rewardledger/internal/service/referral"
	"github.com/nkiryanov/rewardledger/internal/service/reward"
	"github.com/nkiryanov/rewardledger/internal/service/withdrawal"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Services struct {
	Account    accountService
	Reward     rewardService
	Withdrawal withdrawalService
	Deposit    depositService
	Membership membershipService
	Referral   referralService
}

func NewRouter(
	services Services,
	tokens tokenParser,
	m *metrics.Metrics,
	logger logger.Logger,
) http.Handler {
	mux := http.NewServeMux()

	authMiddleware := middleware.AuthMiddleware(tokens)

	user := func(pattern string, h http.Handler) {
		mux.Handle(pattern, chain(h, middleware.MetricsMiddleware(m, pattern), authMiddleware))
	}
	admin := func(pattern string, h http.Handler) {
		mux.Handle(pattern, chain(h, middleware.MetricsMiddleware(m, pattern), authMiddleware, middleware.AdminOnly))
	}

	user("GET /api/account", handleOverview(services.Account, logger))
	user("POST /api/account", handleOpenAccount(services.Account, logger))
	user("GET /api/referrals", handleListReferrals(services.Account, logger))
	user("GET /api/tier", handleTier(services.Membership, logger))
	user("POST /api/tasks/complete", handleCompleteTask(services.Reward, logger))
	user("GET /api/tasks/today", handleTodayTasks(services.Reward, logger))
	user("POST /api/withdrawals", handleRequestWithdrawal(services.Withdrawal, logger))
	user("GET /api/withdrawals", handleListWithdrawals(services.Withdrawal, logger))
	user("POST /api/deposits", handleCreateDeposit(services.Deposit, logger))
	user("GET /api/deposits", handleListDeposits(services.Deposit, logger))

	admin("POST /api/admin/accounts", handleRegister(services.Account, logger))
	admin("GET /api/admin/accounts/{id}", handleAccountOverview(services.Account, logger))
	admin("PUT /api/admin/accounts/{id}/tier", handleAssignTier(services.Membership, logger))
	admin("POST /api/admin/accounts/{id}/tier/resolve", handleResolveTier(services.Membership, logger))
	admin("PUT /api/admin/accounts/{id}/blocked", handleSetBlocked(services.Account, logger))
	admin("POST /api/admin/accounts/{id}/commission", handleDistributeCommission(services.Referral, logger))
	admin("POST /api/admin/deposits/events", handleDepositEvent(services.Deposit, logger))
	admin("POST /api/admin/deposits/{id}/approve", handleApproveDeposit(services.Deposit, logger))
	admin("POST /api/admin/deposits/{id}/reject", handleRejectDeposit(services.Deposit, logger))
	admin("GET /api/admin/withdrawals/pending", handleListPendingWithdrawals(services.Withdrawal, logger))
	admin("POST /api/admin/withdrawals/{id}/processing", handleMarkProcessing(services.Withdrawal, logger))
	admin("POST /api/admin/withdrawals/{id}/approve", handleApproveWithdrawal(services.Withdrawal, logger))
	admin("POST /api/admin/withdrawals/{id}/reject", handleRejectWithdrawal(services.Withdrawal, logger))

	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	handler := chain(mux,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type tokenParser interface {
	Parse(access string) (models.Caller, error)
}

type accountService interface {
	// Has to return apperrors.ErrAccountAlreadyExists if account with the id exists
	// and apperrors.ErrReferrerNotFound if referrer is unknown
	Register(ctx context.Context, req account.RegisterRequest) (models.Account, error)
	Overview(ctx context.Context, id uuid.UUID) (account.Overview, error)
	ListReferrals(ctx context.Context, id uuid.UUID) ([]models.ReferralEdge, error)
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (models.Account, error)
}

type rewardService interface {
	CompleteTask(ctx context.Context, accountID uuid.UUID) (reward.Result, error)
	TodayCounter(ctx context.Context, accountID uuid.UUID) (models.DailyTaskCounter, error)
}

type withdrawalService interface {
	RequestWithdrawal(ctx context.Context, req withdrawal.Request) (models.Transaction, error)
	ListWithdrawals(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error)
	ListPending(ctx context.Context) ([]models.Transaction, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID) (models.Transaction, error)
	Approve(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, externalRef string) (models.Transaction, error)
	Reject(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, reason string) (models.Transaction, error)
}

type depositService interface {
	CreateDeposit(ctx context.Context, req deposit.Request) (models.Transaction, error)
	ListDeposits(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error)
	ApproveDeposit(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID) (deposit.Result, error)
	RejectDeposit(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, reason string) (models.Transaction, error)
	RecordApprovedDeposit(ctx context.Context, req deposit.Request) (deposit.Result, error)
}

type membershipService interface {
	ResolveTier(ctx context.Context, accountID uuid.UUID) (models.Tier, error)
	TierParams(tier models.Tier) models.TierParams
	AutoPromote(ctx context.Context, accountID uuid.UUID) (models.Tier, bool, error)
	AssignTier(ctx context.Context, accountID uuid.UUID, tier *models.Tier, adminID uuid.UUID) (models.Account, error)
	History(ctx context.Context, accountID uuid.UUID) ([]models.TierEvent, error)
}

type referralService interface {
	DistributeCommission(ctx context.Context, req referral.CommissionRequest) (referral.Report, error)
}
