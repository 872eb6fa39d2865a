package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/coinledger/internal/domain"
)

// TransactionLogRepository implements usecase.TransactionLog.
type TransactionLogRepository struct {
	db querier
}

// NewTransactionLogRepository creates a new TransactionLogRepository.
func NewTransactionLogRepository(pool *pgxpool.Pool) *TransactionLogRepository {
	return &TransactionLogRepository{db: pool}
}

// Append inserts a transfer record. Re-appending an existing id does nothing.
func (r *TransactionLogRepository) Append(ctx context.Context, record *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, sender_wallet_id, recipient_wallet_id, coins, time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.SenderWalletID,
		record.RecipientWalletID,
		record.Amount,
		record.CreatedAt,
	)

	return err
}

// Query returns matching records in insertion order.
func (r *TransactionLogRepository) Query(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	query, args := buildTransactionQuery(filter)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*domain.Transaction, 0)
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.SenderWalletID, &t.RecipientWalletID, &t.Amount, &t.CreatedAt); err != nil {
			return nil, err
		}

		records = append(records, &t)
	}

	return records, rows.Err()
}

func buildTransactionQuery(filter domain.TransactionFilter) (string, []any) {
	var (
		where []string
		args  []any
	)

	if filter.WalletID != nil {
		args = append(args, *filter.WalletID)
		where = append(where, fmt.Sprintf("(sender_wallet_id = $%d OR recipient_wallet_id = $%d)", len(args), len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		where = append(where, fmt.Sprintf("time >= $%d", len(args)))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		where = append(where, fmt.Sprintf("time < $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, sender_wallet_id, recipient_wallet_id, coins, time FROM transactions")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY seq")

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	return sb.String(), args
}
