package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/tycoon/internal/economy"
)

const marketColumns = `item, base_price, current_price, demand, supply, trend, sentiment, history, updated_at`

// marketRow carries the JSON-encoded history column.
type marketRow struct {
	economy.MarketPrice
	HistoryJSON string `db:"history"`
}

func (r *marketRow) decode() (*economy.MarketPrice, error) {
	p := r.MarketPrice
	if r.HistoryJSON != "" {
		if err := json.Unmarshal([]byte(r.HistoryJSON), &p.History); err != nil {
			return nil, fmt.Errorf("decode %s history: %w", p.Item, err)
		}
	}
	return &p, nil
}

func encodeHistory(h []int64) string {
	if h == nil {
		h = []int64{}
	}
	raw, _ := json.Marshal(h)
	return string(raw)
}

// SeedMarket inserts any item not yet priced. Existing rows are kept.
func (db *DB) SeedMarket(ctx context.Context, prices []*economy.MarketPrice) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, p := range prices {
			_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO market_prices (`+marketColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (item) DO NOTHING`),
				p.Item, p.BasePrice, p.CurrentPrice, p.Demand, p.Supply, p.Trend, p.Sentiment,
				encodeHistory(p.History), p.UpdatedAt)
			if err != nil {
				return fmt.Errorf("seed %s: %w", p.Item, err)
			}
		}
		return nil
	})
}

// GetPrice returns an item's market row, served from the price cache when
// fresh.
func (db *DB) GetPrice(ctx context.Context, item economy.Item) (*economy.MarketPrice, error) {
	if p, ok := db.prices.Get(item); ok {
		return p, nil
	}
	row := &marketRow{}
	if err := getOne(ctx, db.conn, row, db.conn.Rebind(`SELECT `+marketColumns+` FROM market_prices WHERE item = ?`), item); err != nil {
		return nil, err
	}
	p, err := row.decode()
	if err != nil {
		return nil, err
	}
	db.prices.Put(p)
	return p, nil
}

// ListMarket returns every item in catalog order.
func (db *DB) ListMarket(ctx context.Context) ([]*economy.MarketPrice, error) {
	var rows []*marketRow
	if err := db.conn.SelectContext(ctx, &rows, `SELECT `+marketColumns+` FROM market_prices`); err != nil {
		return nil, err
	}
	byItem := make(map[economy.Item]*economy.MarketPrice, len(rows))
	for _, r := range rows {
		p, err := r.decode()
		if err != nil {
			return nil, err
		}
		byItem[p.Item] = p
	}
	out := make([]*economy.MarketPrice, 0, len(rows))
	for _, item := range economy.Items {
		if p, ok := byItem[item]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// CurrentPrices maps every item to its current price.
func (db *DB) CurrentPrices(ctx context.Context) (map[economy.Item]int64, error) {
	prices, err := db.ListMarket(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[economy.Item]int64, len(prices))
	for _, p := range prices {
		out[p.Item] = p.CurrentPrice
	}
	return out, nil
}

// RecordDemand adds qty to an item's demand counter and reprices it.
func (db *DB) RecordDemand(ctx context.Context, item economy.Item, qty float64) (*economy.MarketPrice, error) {
	return db.adjustMarket(ctx, item, `demand = demand + ?`, qty)
}

// RecordSupply adds qty (negative when goods leave the market) to an
// item's supply counter, floored at zero, and reprices it.
func (db *DB) RecordSupply(ctx context.Context, item economy.Item, qty float64) (*economy.MarketPrice, error) {
	return db.adjustMarket(ctx, item, `supply = CASE WHEN supply + ? < 0 THEN 0 ELSE supply + ? END`, qty, qty)
}

// Reprice recomputes an item's price from its counters.
func (db *DB) Reprice(ctx context.Context, item economy.Item) (*economy.MarketPrice, error) {
	return db.adjustMarket(ctx, item, "")
}

func (db *DB) adjustMarket(ctx context.Context, item economy.Item, set string, args ...any) (*economy.MarketPrice, error) {
	var p *economy.MarketPrice
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		p, err = db.adjustMarketTx(ctx, tx, item, set, args...)
		return err
	})
	db.prices.Invalidate(item)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// adjustMarketTx applies set (if any) to the item's row, then reprices it
// under the row lock. Callers invalidate the price cache after commit.
func (db *DB) adjustMarketTx(ctx context.Context, tx *sqlx.Tx, item economy.Item, set string, args ...any) (*economy.MarketPrice, error) {
	if set != "" {
		err := affected(tx.ExecContext(ctx, tx.Rebind(`UPDATE market_prices SET `+set+` WHERE item = ?`), append(args, item)...))
		if errors.Is(err, ErrConflict) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
	}
	row := &marketRow{}
	if err := getOne(ctx, tx, row, tx.Rebind(`SELECT `+marketColumns+` FROM market_prices WHERE item = ?`+db.forUpdate()), item); err != nil {
		return nil, err
	}
	p, err := row.decode()
	if err != nil {
		return nil, err
	}
	p.Reprice()
	p.UpdatedAt = time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx, tx.Rebind(
		`UPDATE market_prices SET current_price = ?, trend = ?, sentiment = ?, history = ?, updated_at = ?
		 WHERE item = ?`),
		p.CurrentPrice, p.Trend, p.Sentiment, encodeHistory(p.History), p.UpdatedAt, item)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Trade is one settled market line.
type Trade struct {
	Item      economy.Item
	Quantity  float64
	UnitPrice int64
	Cost      int64
}

// Buy settles a purchase in one transaction. The buyer pays ceil(price ×
// qty) at the item's current price, then demand rises and supply falls by
// qty and the item is repriced once. A buyer who cannot pay gets
// ErrInsufficientFunds and neither the balance nor the counters change.
func (db *DB) Buy(ctx context.Context, agentID string, item economy.Item, qty float64) (*Trade, error) {
	var tr *Trade
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var price int64
		err := getOne(ctx, tx, &price, tx.Rebind(`SELECT current_price FROM market_prices WHERE item = ?`+db.forUpdate()), item)
		if err != nil {
			return err
		}
		cost, err := economy.OrderCost(price, qty)
		if err != nil {
			return err
		}
		if err := debit(ctx, tx, agentID, cost); err != nil {
			return err
		}
		_, err = db.adjustMarketTx(ctx, tx, item,
			`demand = demand + ?, supply = CASE WHEN supply - ? < 0 THEN 0 ELSE supply - ? END`, qty, qty, qty)
		if err != nil {
			return err
		}
		tr = &Trade{Item: item, Quantity: qty, UnitPrice: price, Cost: cost}
		return nil
	})
	db.prices.Invalidate(item)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// RecordConsumption records demand for each line and sets the agent's
// population satisfaction, all in one transaction. Lines come back priced
// at the item's post-reprice price. An agent without a population gets
// ErrNotFound and no counter moves.
func (db *DB) RecordConsumption(ctx context.Context, agentID string, lines []Trade, satisfaction float64, now int64) ([]Trade, error) {
	out := make([]Trade, len(lines))
	copy(out, lines)

	// Rows are locked in item order so concurrent consumers cannot deadlock.
	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return out[order[a]].Item < out[order[b]].Item })

	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		err := affected(tx.ExecContext(ctx, tx.Rebind(
			`UPDATE population SET satisfaction = ?, updated_at = ? WHERE agent_id = ?`), satisfaction, now, agentID))
		if errors.Is(err, ErrConflict) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		for _, i := range order {
			p, err := db.adjustMarketTx(ctx, tx, out[i].Item, `demand = demand + ?`, out[i].Quantity)
			if err != nil {
				return fmt.Errorf("%s: %w", out[i].Item, err)
			}
			cost, err := economy.OrderCost(p.CurrentPrice, out[i].Quantity)
			if err != nil {
				return err
			}
			out[i].UnitPrice, out[i].Cost = p.CurrentPrice, cost
		}
		return nil
	})
	for _, l := range out {
		db.prices.Invalidate(l.Item)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
