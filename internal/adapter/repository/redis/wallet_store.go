package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/coinledger/internal/domain"
	"github.com/iho/coinledger/internal/usecase"
)

// Results of adjustScript.
const (
	adjustOK           = 0
	adjustInsufficient = 1
	adjustNotFound     = 2
)

// KEYS[1] wallet hash. ARGV[1] delta, ARGV[2] updated_at.
var adjustScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {2, 0}
end
local coins = tonumber(redis.call('HGET', KEYS[1], 'coins'))
local delta = tonumber(ARGV[1])
if coins + delta < 0 then
	return {1, coins}
end
coins = redis.call('HINCRBY', KEYS[1], 'coins', delta)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return {0, coins}
`)

// KEYS[1] sender hash, KEYS[2] recipient hash. ARGV[1] amount, ARGV[2]
// negated amount, ARGV[3] updated_at. Returns an adjust status; nothing is
// written unless both wallets exist and the sender covers the amount.
var transferScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 or redis.call('EXISTS', KEYS[2]) == 0 then
	return 2
end
if tonumber(redis.call('HGET', KEYS[1], 'coins')) < tonumber(ARGV[1]) then
	return 1
end
redis.call('HINCRBY', KEYS[1], 'coins', ARGV[2])
redis.call('HINCRBY', KEYS[2], 'coins', ARGV[1])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[3])
redis.call('HSET', KEYS[2], 'updated_at', ARGV[3])
return 0
`)

// KEYS[1] record list, KEYS[2] record id set. ARGV[1] id, ARGV[2] payload.
var appendScript = redis.NewScript(`
if redis.call('SADD', KEYS[2], ARGV[1]) == 0 then
	return 0
end
redis.call('RPUSH', KEYS[1], ARGV[2])
return 1
`)

// KEYS[1] owner set. ARGV[1] key prefix. Returns owner, total pairs.
var totalsScript = redis.NewScript(`
local out = {}
for _, owner in ipairs(redis.call('SMEMBERS', KEYS[1])) do
	local total = 0
	for _, id in ipairs(redis.call('ZRANGE', ARGV[1] .. 'owner:' .. owner .. ':wallets', 0, -1)) do
		total = total + tonumber(redis.call('HGET', ARGV[1] .. 'wallet:' .. id, 'coins'))
	end
	table.insert(out, tonumber(owner))
	table.insert(out, total)
end
return out
`)

// KEYS[1] defaults hash, KEYS[2] wallet id counter, KEYS[3] owner set.
// ARGV[1] owner id, ARGV[2] key prefix, ARGV[3] coins, ARGV[4] created_at,
// ARGV[5] updated_at. Returns {created, wallet id}.
var provisionScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if current then
	return {0, tonumber(current)}
end
local id = redis.call('INCR', KEYS[2])
local sid = tostring(id)
redis.call('HSET', ARGV[2] .. 'wallet:' .. sid,
	'owner_id', ARGV[1], 'coins', ARGV[3], 'created_at', ARGV[4], 'updated_at', ARGV[5])
redis.call('ZADD', ARGV[2] .. 'owner:' .. ARGV[1] .. ':wallets', sid, sid)
redis.call('SADD', KEYS[3], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[1], sid)
return {1, id}
`)

var errTxUnsupported = errors.New("redis wallet store does not support transactions")

// WalletStore keeps wallets, the transaction log and the owner directory in
// Redis. Every balance change, including both legs of a transfer, runs as a
// single Lua script.
type WalletStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var (
	_ usecase.WalletRepository      = (*WalletStore)(nil)
	_ usecase.WalletTransferer      = (*WalletStore)(nil)
	_ usecase.TransactionLog        = (*WalletStore)(nil)
	_ usecase.LeaderboardRepository = (*WalletStore)(nil)
	_ usecase.Directory             = (*WalletStore)(nil)
)

// NewWalletStore creates a new WalletStore.
func NewWalletStore(client *redis.Client) *WalletStore {
	return &WalletStore{
		client: client,
		prefix: "ledger:",
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *WalletStore) walletKey(id int64) string {
	return fmt.Sprintf("%swallet:%d", s.prefix, id)
}

func (s *WalletStore) ownerKey(ownerID int64) string {
	return fmt.Sprintf("%sowner:%d:wallets", s.prefix, ownerID)
}

func (s *WalletStore) key(name string) string {
	return s.prefix + name
}

// Create allocates an id from a counter and stores the wallet hash.
func (s *WalletStore) Create(ctx context.Context, wallet *domain.Wallet) error {
	id, err := s.client.Incr(ctx, s.key("wallet:seq")).Result()
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.walletKey(id),
			"owner_id", wallet.OwnerID,
			"coins", wallet.Balance,
			"created_at", wallet.CreatedAt.Format(time.RFC3339Nano),
			"updated_at", wallet.UpdatedAt.Format(time.RFC3339Nano),
		)
		pipe.ZAdd(ctx, s.ownerKey(wallet.OwnerID), redis.Z{Score: float64(id), Member: id})
		pipe.SAdd(ctx, s.key("owners"), wallet.OwnerID)
		return nil
	})
	if err != nil {
		return err
	}

	wallet.ID = id
	return nil
}

// GetByID reads a wallet hash.
func (s *WalletStore) GetByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	fields, err := s.client.HGetAll(ctx, s.walletKey(id)).Result()
	if err != nil {
		return nil, err
	}

	return parseWallet(id, fields)
}

// ListByOwner returns the owner's wallets ordered by id.
func (s *WalletStore) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Wallet, error) {
	members, err := s.client.ZRange(ctx, s.ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(members))
	cmds := make([]*redis.MapStringStringCmd, 0, len(members))

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range members {
			id, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt wallet index entry %q: %w", m, err)
			}

			ids = append(ids, id)
			cmds = append(cmds, pipe.HGetAll(ctx, s.walletKey(id)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	wallets := make([]*domain.Wallet, 0, len(ids))
	for i, cmd := range cmds {
		w, err := parseWallet(ids[i], cmd.Val())
		if err != nil {
			return nil, err
		}

		wallets = append(wallets, w)
	}

	return wallets, nil
}

// ConditionalAdjust applies delta in a Lua script. tx must be nil.
func (s *WalletStore) ConditionalAdjust(ctx context.Context, tx usecase.Transaction, id int64, delta int64) (int64, error) {
	if tx != nil {
		return 0, errTxUnsupported
	}

	res, err := adjustScript.Run(ctx, s.client,
		[]string{s.walletKey(id)},
		delta, s.now().Format(time.RFC3339Nano),
	).Int64Slice()
	if err != nil {
		return 0, err
	}

	if len(res) != 2 {
		return 0, fmt.Errorf("unexpected adjust result %v", res)
	}

	switch res[0] {
	case adjustOK:
		return res[1], nil
	case adjustInsufficient:
		return res[1], domain.ErrInsufficientFunds
	case adjustNotFound:
		return 0, domain.ErrWalletNotFound
	default:
		return 0, fmt.Errorf("unexpected adjust status %d", res[0])
	}
}

// Transfer moves amount from sender to recipient in one script.
func (s *WalletStore) Transfer(ctx context.Context, senderID, recipientID, amount int64) error {
	status, err := transferScript.Run(ctx, s.client,
		[]string{s.walletKey(senderID), s.walletKey(recipientID)},
		amount, -amount, s.now().Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		return err
	}

	switch status {
	case adjustOK:
		return nil
	case adjustInsufficient:
		return domain.ErrInsufficientFunds
	case adjustNotFound:
		return domain.ErrWalletNotFound
	default:
		return fmt.Errorf("unexpected transfer status %d", status)
	}
}

type transactionRecord struct {
	ID                string    `json:"id"`
	SenderWalletID    int64     `json:"sender_wallet_id"`
	RecipientWalletID int64     `json:"recipient_wallet_id"`
	Amount            int64     `json:"coins"`
	CreatedAt         time.Time `json:"time"`
}

// Append pushes the record onto the log list unless its id was seen before.
func (s *WalletStore) Append(ctx context.Context, record *domain.Transaction) error {
	payload, err := json.Marshal(transactionRecord{
		ID:                record.ID,
		SenderWalletID:    record.SenderWalletID,
		RecipientWalletID: record.RecipientWalletID,
		Amount:            record.Amount,
		CreatedAt:         record.CreatedAt,
	})
	if err != nil {
		return err
	}

	return appendScript.Run(ctx, s.client,
		[]string{s.key("transactions"), s.key("transactions:ids")},
		record.ID, payload,
	).Err()
}

// Query scans the log list in insertion order.
func (s *WalletStore) Query(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	items, err := s.client.LRange(ctx, s.key("transactions"), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*domain.Transaction, 0)
	skipped := 0
	for _, item := range items {
		var rec transactionRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("corrupt transaction record: %w", err)
		}

		t := &domain.Transaction{
			ID:                rec.ID,
			SenderWalletID:    rec.SenderWalletID,
			RecipientWalletID: rec.RecipientWalletID,
			Amount:            rec.Amount,
			CreatedAt:         rec.CreatedAt,
		}
		if !filter.Matches(t) {
			continue
		}

		if skipped < filter.Offset {
			skipped++
			continue
		}

		if filter.Limit > 0 && len(records) >= filter.Limit {
			break
		}

		records = append(records, t)
	}

	return records, nil
}

// TopOwners sums balances per owner inside one script, so the ranking is
// taken from a single snapshot.
func (s *WalletStore) TopOwners(ctx context.Context, n int) ([]domain.OwnerTotal, error) {
	res, err := totalsScript.Run(ctx, s.client, []string{s.key("owners")}, s.prefix).Int64Slice()
	if err != nil {
		return nil, err
	}

	rows := make([]domain.OwnerTotal, 0, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		rows = append(rows, domain.OwnerTotal{OwnerID: res[i], TotalCoins: res[i+1]})
	}

	return domain.SortOwnerTotals(rows, n), nil
}

// DefaultWallet returns the owner's default wallet id.
func (s *WalletStore) DefaultWallet(ctx context.Context, ownerID int64) (int64, error) {
	id, err := s.client.HGet(ctx, s.key("defaults"), strconv.FormatInt(ownerID, 10)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrDefaultWalletNotSet
	}

	return id, err
}

// SetDefaultWallet records the owner's default wallet.
func (s *WalletStore) SetDefaultWallet(ctx context.Context, ownerID, walletID int64) error {
	exists, err := s.client.Exists(ctx, s.walletKey(walletID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return domain.ErrWalletNotFound
	}

	return s.client.HSet(ctx, s.key("defaults"), strconv.FormatInt(ownerID, 10), walletID).Err()
}

// ProvisionDefaultWallet creates wallet and makes it the owner's default in
// one script. Owners that already have a default keep it and nothing is
// created.
func (s *WalletStore) ProvisionDefaultWallet(ctx context.Context, wallet *domain.Wallet) (int64, bool, error) {
	res, err := provisionScript.Run(ctx, s.client,
		[]string{s.key("defaults"), s.key("wallet:seq"), s.key("owners")},
		wallet.OwnerID, s.prefix, wallet.Balance,
		wallet.CreatedAt.Format(time.RFC3339Nano), wallet.UpdatedAt.Format(time.RFC3339Nano),
	).Int64Slice()
	if err != nil {
		return 0, false, err
	}

	if len(res) != 2 {
		return 0, false, fmt.Errorf("unexpected provision result %v", res)
	}

	if res[0] == 0 {
		return res[1], false, nil
	}

	wallet.ID = res[1]

	return wallet.ID, true, nil
}

func parseWallet(id int64, fields map[string]string) (*domain.Wallet, error) {
	if len(fields) == 0 {
		return nil, domain.ErrWalletNotFound
	}

	w := &domain.Wallet{ID: id}

	var err error
	if w.OwnerID, err = strconv.ParseInt(fields["owner_id"], 10, 64); err != nil {
		return nil, fmt.Errorf("wallet %d: bad owner_id: %w", id, err)
	}
	if w.Balance, err = strconv.ParseInt(fields["coins"], 10, 64); err != nil {
		return nil, fmt.Errorf("wallet %d: bad coins: %w", id, err)
	}
	if w.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("wallet %d: bad created_at: %w", id, err)
	}
	if w.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"]); err != nil {
		return nil, fmt.Errorf("wallet %d: bad updated_at: %w", id, err)
	}

	return w, nil
}
