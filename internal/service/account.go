package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/minledger/internal/domain"
	"github.com/punchamoorthee/minledger/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AccountService owns the account lifecycle. Status and balance changes made
// here are administrative and bypass the transfer rules.
type AccountService struct {
	store       store.Store
	numbers     NumberGenerator
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

func NewAccountService(s store.Store, numbers NumberGenerator, maxAttempts int, logger *zap.Logger) *AccountService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &AccountService{
		store:       s,
		numbers:     numbers,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create opens an ACTIVE account with a freshly generated account number.
func (s *AccountService) Create(ctx context.Context, name string, initialBalance decimal.Decimal) (domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Account{}, fmt.Errorf("%w: account name is required", domain.ErrInvalidOperation)
	}
	if initialBalance.IsNegative() {
		return domain.Account{}, fmt.Errorf("%w: initial balance must not be negative", domain.ErrInvalidOperation)
	}

	now := s.now()
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		number := s.numbers.Next()

		_, err := s.store.Accounts().GetByNumber(ctx, number)
		if err == nil {
			accountNumberRetries.Inc()
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Account{}, err
		}

		account, err := s.store.Accounts().Save(ctx, domain.Account{
			ID:            uuid.New(),
			AccountNumber: number,
			Name:          name,
			Balance:       initialBalance,
			Status:        domain.AccountActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if errors.Is(err, domain.ErrDuplicateAccountNumber) {
			// Taken between the check and the insert.
			accountNumberRetries.Inc()
			continue
		}
		if err != nil {
			return domain.Account{}, err
		}

		s.logger.Info("account created",
			zap.String("account_id", account.ID.String()),
			zap.String("account_number", account.AccountNumber),
			zap.Int("attempts", attempt))
		return account, nil
	}

	s.logger.Error("account number space exhausted", zap.Int("attempts", s.maxAttempts))
	return domain.Account{}, fmt.Errorf("after %d attempts: %w", s.maxAttempts, domain.ErrAccountNumberExhausted)
}

func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	return s.store.Accounts().Get(ctx, id)
}

func (s *AccountService) Balance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	a, err := s.store.Accounts().Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Balance, nil
}

// UpdateStatus relabels the account. The status is parsed case-insensitively.
func (s *AccountService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (domain.Account, error) {
	st, err := domain.ParseAccountStatus(status)
	if err != nil {
		return domain.Account{}, err
	}

	var updated domain.Account
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.Accounts().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		a.Status = st
		a.UpdatedAt = s.now()
		updated, err = tx.Accounts().Save(ctx, a)
		return err
	})
	if err != nil {
		return domain.Account{}, err
	}

	s.logger.Info("account status updated",
		zap.String("account_id", id.String()),
		zap.String("status", string(st)))
	return updated, nil
}

// UpdateBalance overwrites the balance. It is a correction tool, not a transfer.
func (s *AccountService) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (domain.Account, error) {
	var (
		updated  domain.Account
		previous decimal.Decimal
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.Accounts().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		previous = a.Balance
		a.Balance = balance
		a.UpdatedAt = s.now()
		updated, err = tx.Accounts().Save(ctx, a)
		return err
	})
	if err != nil {
		return domain.Account{}, err
	}

	s.logger.Warn("account balance overridden",
		zap.String("account_id", id.String()),
		zap.String("previous", previous.String()),
		zap.String("balance", balance.String()))
	return updated, nil
}

// Delete removes the account. Transactions that reference it are kept.
func (s *AccountService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Accounts().Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("account deleted", zap.String("account_id", id.String()))
	return nil
}

func (s *AccountService) ListAll(ctx context.Context) ([]domain.Account, error) {
	return s.store.Accounts().FindAll(ctx)
}

func (s *AccountService) ListByStatus(ctx context.Context, status string) ([]domain.Account, error) {
	st, err := domain.ParseAccountStatus(status)
	if err != nil {
		return nil, err
	}
	return s.store.Accounts().FindByStatus(ctx, st)
}

// Search pages through accounts whose name or number contains keyword. An
// empty status matches all statuses.
func (s *AccountService) Search(ctx context.Context, keyword, status string, page domain.PageRequest) (domain.Page[domain.Account], error) {
	if err := page.Validate(); err != nil {
		return domain.Page[domain.Account]{}, err
	}
	var st domain.AccountStatus
	if strings.TrimSpace(status) != "" {
		parsed, err := domain.ParseAccountStatus(status)
		if err != nil {
			return domain.Page[domain.Account]{}, err
		}
		st = parsed
	}
	return s.store.Accounts().FindByKeyword(ctx, keyword, st, page)
}
