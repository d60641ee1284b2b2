package domain

import (
	"fmt"
	"strings"
)

// AccountStatus is the administrative lifecycle state of an account.
type AccountStatus string

const (
	AccountActive  AccountStatus = "ACTIVE"
	AccountBlocked AccountStatus = "BLOCKED"
	AccountClosed  AccountStatus = "CLOSED"
)

// TransactionStatus labels a recorded transaction.
type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "SUCCESS"
	TransactionFailed  TransactionStatus = "FAILED"
	TransactionPending TransactionStatus = "PENDING"
)

var accountStatuses = []AccountStatus{AccountActive, AccountBlocked, AccountClosed}

var transactionStatuses = []TransactionStatus{TransactionSuccess, TransactionFailed, TransactionPending}

// ParseAccountStatus parses s case-insensitively into an AccountStatus.
func ParseAccountStatus(s string) (AccountStatus, error) {
	v := AccountStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range accountStatuses {
		if st == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: invalid account status %q", ErrInvalidOperation, s)
}

// ParseTransactionStatus parses s case-insensitively into a TransactionStatus.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	v := TransactionStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range transactionStatuses {
		if st == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: invalid transaction status %q", ErrInvalidOperation, s)
}

// Valid reports whether s is one of the known account statuses.
func (s AccountStatus) Valid() bool {
	for _, st := range accountStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known transaction statuses.
func (s TransactionStatus) Valid() bool {
	for _, st := range transactionStatuses {
		if st == s {
			return true
		}
	}
	return false
}
