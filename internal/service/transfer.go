package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/minledger/internal/cache"
	"github.com/punchamoorthee/minledger/internal/domain"
	"github.com/punchamoorthee/minledger/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferRequest moves Amount from SenderID to ReceiverID. IdempotencyKey is
// optional; RequestHash defaults to Fingerprint of the request.
type TransferRequest struct {
	SenderID       uuid.UUID
	ReceiverID     uuid.UUID
	Amount         decimal.Decimal
	Message        string
	IdempotencyKey string
	RequestHash    string
}

// Fingerprint identifies the payload of a transfer request so that a reused
// idempotency key can be told apart from a replay.
func Fingerprint(r TransferRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", r.SenderID, r.ReceiverID, r.Amount.String(), r.Message)
	return hex.EncodeToString(h.Sum(nil))
}

type TransferResult struct {
	Transaction domain.Transaction
	// Replayed is set when the result was recorded by an earlier request with
	// the same idempotency key.
	Replayed bool
}

type TransferService struct {
	store  store.Store
	cache  cache.Cache
	logger *zap.Logger
	now    func() time.Time
}

func NewTransferService(s store.Store, c cache.Cache, logger *zap.Logger) *TransferService {
	if c == nil {
		c = cache.Nop{}
	}
	return &TransferService{
		store:  s,
		cache:  c,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Transfer debits the sender, credits the receiver and records the
// transaction as one unit. Both account rows are locked in ascending id order.
func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	start := time.Now()
	res, err := s.transfer(ctx, req)
	transferDuration.Observe(time.Since(start).Seconds())
	transfersTotal.WithLabelValues(outcome(err)).Inc()

	fields := []zap.Field{
		zap.String("sender_id", req.SenderID.String()),
		zap.String("receiver_id", req.ReceiverID.String()),
		zap.String("amount", req.Amount.String()),
	}
	switch {
	case err == nil && res.Replayed:
		s.logger.Info("transfer replayed",
			append(fields, zap.String("transaction_id", res.Transaction.ID.String()))...)
	case err == nil:
		s.cache.Delete(ctx, cache.TransactionKeys(res.Transaction)...)
		s.logger.Info("transfer completed",
			append(fields, zap.String("transaction_id", res.Transaction.ID.String()))...)
	case errors.Is(err, domain.ErrStoreFailure):
		s.logger.Error("transfer failed", append(fields, zap.Error(err))...)
	default:
		s.logger.Warn("transfer rejected", append(fields, zap.Error(err))...)
	}
	return res, err
}

func (s *TransferService) transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if req.SenderID == req.ReceiverID {
		return TransferResult{}, fmt.Errorf("%w: cannot transfer to the same account", domain.ErrInvalidOperation)
	}
	if !req.Amount.IsPositive() {
		return TransferResult{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidOperation)
	}
	if req.IdempotencyKey != "" && req.RequestHash == "" {
		req.RequestHash = Fingerprint(req)
	}

	var res TransferResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if req.IdempotencyKey != "" {
			replayed, found, err := s.replay(ctx, tx, req)
			if err != nil {
				return err
			}
			if found {
				res = TransferResult{Transaction: replayed, Replayed: true}
				return nil
			}
		}

		// Lock in a global order so two transfers over the same pair cannot deadlock.
		first, second := req.SenderID, req.ReceiverID
		if bytes.Compare(first[:], second[:]) > 0 {
			first, second = second, first
		}
		a, err := tx.Accounts().GetForUpdate(ctx, first)
		if err != nil {
			return err
		}
		b, err := tx.Accounts().GetForUpdate(ctx, second)
		if err != nil {
			return err
		}
		sender, receiver := a, b
		if sender.ID != req.SenderID {
			sender, receiver = b, a
		}

		if sender.Status != domain.AccountActive || receiver.Status != domain.AccountActive {
			return fmt.Errorf("%w: account unavailable", domain.ErrInvalidOperation)
		}
		if sender.Balance.LessThan(req.Amount) {
			return fmt.Errorf("account %s: %w", sender.ID, domain.ErrInsufficientFunds)
		}

		now := s.now()
		sender.Balance = sender.Balance.Sub(req.Amount)
		sender.UpdatedAt = now
		receiver.Balance = receiver.Balance.Add(req.Amount)
		receiver.UpdatedAt = now

		if _, err := tx.Accounts().Save(ctx, sender); err != nil {
			return err
		}
		if _, err := tx.Accounts().Save(ctx, receiver); err != nil {
			return err
		}

		t, err := tx.Transactions().Save(ctx, domain.Transaction{
			ID:                uuid.New(),
			SenderAccountID:   sender.ID,
			ReceiverAccountID: receiver.ID,
			Amount:            req.Amount,
			Status:            domain.TransactionSuccess,
			Message:           req.Message,
			CreatedAt:         now,
		})
		if err != nil {
			return err
		}

		if req.IdempotencyKey != "" {
			err = tx.Idempotency().Put(ctx, domain.IdempotencyRecord{
				Key:           req.IdempotencyKey,
				RequestHash:   req.RequestHash,
				TransactionID: t.ID,
				CreatedAt:     now,
			})
			if err != nil {
				return err
			}
		}

		res = TransferResult{Transaction: t}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return res, nil
}

func (s *TransferService) replay(ctx context.Context, tx store.Tx, req TransferRequest) (domain.Transaction, bool, error) {
	rec, err := tx.Idempotency().Get(ctx, req.IdempotencyKey)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Transaction{}, false, nil
	}
	if err != nil {
		return domain.Transaction{}, false, err
	}
	if rec.RequestHash != req.RequestHash {
		return domain.Transaction{}, false, domain.ErrIdempotencyMismatch
	}
	t, err := tx.Transactions().Get(ctx, rec.TransactionID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Transaction{}, false, fmt.Errorf("idempotency key %q: %w", req.IdempotencyKey, domain.ErrIdempotencyKeySpent)
	}
	if err != nil {
		return domain.Transaction{}, false, fmt.Errorf("idempotency key %q: %w", req.IdempotencyKey, err)
	}
	return t, true, nil
}

func (s *TransferService) GetByID(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	return s.store.Transactions().Get(ctx, id)
}

// UpdateStatus relabels a transaction. Balances are not touched.
func (s *TransferService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (domain.Transaction, error) {
	st, err := domain.ParseTransactionStatus(status)
	if err != nil {
		return domain.Transaction{}, err
	}

	var updated domain.Transaction
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.Transactions().Get(ctx, id)
		if err != nil {
			return err
		}
		t.Status = st
		updated, err = tx.Transactions().Save(ctx, t)
		return err
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.cache.Delete(ctx, cache.TransactionKeys(updated)...)
	s.logger.Info("transaction status updated",
		zap.String("transaction_id", id.String()),
		zap.String("status", string(st)))
	return updated, nil
}

// DeleteByID removes the record only; the balance effect of the transfer stays.
func (s *TransferService) DeleteByID(ctx context.Context, id uuid.UUID) error {
	var deleted domain.Transaction
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.Transactions().Get(ctx, id)
		if err != nil {
			return err
		}
		deleted = t
		return tx.Transactions().DeleteByID(ctx, id)
	})
	if err != nil {
		return err
	}

	s.cache.Delete(ctx, cache.TransactionKeys(deleted)...)
	s.logger.Info("transaction deleted", zap.String("transaction_id", id.String()))
	return nil
}
