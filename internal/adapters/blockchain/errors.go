package blockchain

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
)

var (
	underpricedMarkers = []string{
		"underpriced",
		"fee too low",
		"less than block base fee",
		"max fee per gas less than",
	}
	rejectedMarkers = []string{
		"denied",
		"rejected",
		"cancelled",
		"canceled",
		"condition of use not satisfied",
		"0x6985",
	}
)

// classifyError maps a node or signer error onto a TransactionError kind
func classifyError(err error, hash common.Hash) error {
	if err == nil {
		return nil
	}
	var txErr *domain.TransactionError
	if errors.As(err, &txErr) {
		return err
	}

	kind := domain.TxSend
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.TxTimeout
	case containsAny(msg, underpricedMarkers):
		kind = domain.TxUnderpriced
	case containsAny(msg, rejectedMarkers):
		kind = domain.TxRejected
	case strings.Contains(msg, "execution reverted"):
		kind = domain.TxReverted
	}
	return &domain.TransactionError{Kind: kind, TxHash: hash, Err: err}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
