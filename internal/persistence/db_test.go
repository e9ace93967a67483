package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/talgya/tycoon/internal/agents"
	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/world"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "tycoon.db"), Options{PriceTTL: time.Minute})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func addAgent(t *testing.T, db *DB, id string, balance int64) {
	t.Helper()
	cfg := agents.DefaultSpawnConfig()
	cfg.StartingBalance = balance
	a, p := agents.NewSpawner(cfg).Spawn(id, "agent-"+id, "key-"+id, "", 1, epoch)
	if err := db.CreateAgent(context.Background(), a, p, nil); err != nil {
		t.Fatalf("create agent %s: %v", id, err)
	}
}

func addParcel(t *testing.T, db *DB, id string, price int64, owner *string) {
	t.Helper()
	p := &world.Parcel{
		ID: id, Type: world.ParcelIndustrial, Area: 100, PowerCapacity: 100,
		BasePrice: price, OwnerID: owner, CreatedAt: epoch.UnixMilli(),
	}
	if err := db.InsertParcels(context.Background(), []*world.Parcel{p}); err != nil {
		t.Fatalf("insert parcel: %v", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tycoon.db")
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		db, err := Open(ctx, DialectSQLite, path, Options{})
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		if err := db.SaveMeta(ctx, "day", "7"); err != nil {
			t.Fatalf("save meta: %v", err)
		}
		db.Close()
	}

	db := openTestDB(t)
	if _, err := db.GetMeta(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimParcelSingleWinner(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addAgent(t, db, "a1", 10000)
	addAgent(t, db, "a2", 10000)
	addParcel(t, db, "p1", 3000, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"a1", "a2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = db.ClaimParcel(ctx, "p1", id)
		}(i, id)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("wins=%d conflicts=%d, want 1/1", wins, conflicts)
	}

	p, _ := db.GetParcel(ctx, "p1")
	owner, _ := db.GetAgent(ctx, *p.OwnerID)
	if owner.Balance != 7000 {
		t.Fatalf("winner balance = %d, want 7000", owner.Balance)
	}
	agentsList, _ := db.ListAgents(ctx)
	var total int64
	for _, a := range agentsList {
		total += a.Balance
	}
	if total != 17000 {
		t.Fatalf("loser was charged: total balance %d", total)
	}
}

func TestClaimParcelInsufficientFunds(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addAgent(t, db, "a1", 100)
	addParcel(t, db, "p1", 3000, nil)

	if _, err := db.ClaimParcel(ctx, "p1", "a1"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	p, _ := db.GetParcel(ctx, "p1")
	if p.OwnerID != nil {
		t.Fatalf("failed purchase left an owner")
	}
	if _, err := db.ClaimParcel(ctx, "nope", "a1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHireFireKeepPoolsConsistent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addAgent(t, db, "a1", 1_000_000)
	owner := "a1"
	addParcel(t, db, "p1", 1000, &owner)

	spec := economy.DefaultCatalog().Facility(economy.FacilityRetail)
	f := economy.NewFacility("f1", "p1", "a1", economy.FacilityRetail, spec, epoch)
	if err := db.CreateFacility(ctx, f, spec.BuildCost); err != nil {
		t.Fatalf("create facility: %v", err)
	}

	delta := economy.EfficiencyDelta(f.Type, spec, 60)
	if err := db.Hire(ctx, "f1", "a1", 60, delta); err != nil {
		t.Fatalf("hire: %v", err)
	}
	if err := db.Hire(ctx, "f1", "a1", 50, delta); !errors.Is(err, ErrInsufficientResource) {
		t.Fatalf("expected ErrInsufficientResource, got %v", err)
	}
	got, _ := db.GetFacility(ctx, "f1")
	if got.Workers != 60 {
		t.Fatalf("rejected hire changed workers: %d", got.Workers)
	}

	if err := db.Fire(ctx, "f1", "a1", 61, 0); !errors.Is(err, ErrInsufficientResource) {
		t.Fatalf("expected ErrInsufficientResource for over-fire, got %v", err)
	}
	if err := db.Fire(ctx, "f1", "a1", 10, economy.EfficiencyDelta(f.Type, spec, 10)); err != nil {
		t.Fatalf("fire: %v", err)
	}
	p, _ := db.GetPopulation(ctx, "a1")
	if p.Employed != 50 || p.Unemployed != 50 {
		t.Fatalf("pools = %d/%d, want 50/50", p.Employed, p.Unemployed)
	}

	n, err := db.LayOff(ctx, "f1", economy.EfficiencyDelta(f.Type, spec, 1))
	if err != nil || n != 50 {
		t.Fatalf("layoff = %d, %v", n, err)
	}
	p, _ = db.GetPopulation(ctx, "a1")
	if p.Employed != 0 || p.Unemployed != 100 {
		t.Fatalf("layoff did not restore pools: %+v", p)
	}
}

func TestCreateFacilityRequiresOwnership(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addAgent(t, db, "a1", 1_000_000)
	addParcel(t, db, "p1", 1000, nil)

	spec := economy.DefaultCatalog().Facility(economy.FacilityAgriculture)
	f := economy.NewFacility("f1", "p1", "a1", economy.FacilityAgriculture, spec, epoch)
	if err := db.CreateFacility(ctx, f, spec.BuildCost); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on unowned parcel, got %v", err)
	}
	a, _ := db.GetAgent(ctx, "a1")
	if a.Balance != 1_000_000 {
		t.Fatalf("rejected build was charged")
	}
}

func TestRepayLoanTransitions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addAgent(t, db, "a1", 10000)

	terms := economy.DefaultCatalog().Loans[economy.LoanShort]
	l, err := economy.NewLoan("l1", "a1", economy.LoanShort, terms, 5000, 7, epoch, 10*time.Minute)
	if err != nil {
		t.Fatalf("new loan: %v", err)
	}
	if err := db.CreateLoan(ctx, l); err != nil {
		t.Fatalf("create loan: %v", err)
	}

	if _, err := db.RepayLoan(ctx, "l1", "a1", l.TotalDue+1); !errors.Is(err, economy.ErrOverpayment) {
		t.Fatalf("expected overpayment, got %v", err)
	}
	got, err := db.RepayLoan(ctx, "l1", "a1", l.TotalDue)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if got.Status != economy.LoanRepaid {
		t.Fatalf("status = %s, want repaid", got.Status)
	}
	a, _ := db.GetAgent(ctx, "a1")
	if a.Tier != economy.TierA {
		t.Fatalf("tier = %s, want A", a.Tier)
	}
	if a.Balance != 15000-l.TotalDue {
		t.Fatalf("balance = %d, want %d", a.Balance, 15000-l.TotalDue)
	}
	if _, err := db.RepayLoan(ctx, "l1", "a1", 1); !errors.Is(err, economy.ErrLoanClosed) {
		t.Fatalf("expected closed loan, got %v", err)
	}
}

func TestRepayLoanNeedsFunds(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addAgent(t, db, "a1", 0)

	terms := economy.DefaultCatalog().Loans[economy.LoanShort]
	l, _ := economy.NewLoan("l1", "a1", economy.LoanShort, terms, 1000, 7, epoch, 10*time.Minute)
	if err := db.CreateLoan(ctx, l); err != nil {
		t.Fatalf("create loan: %v", err)
	}
	if _, err := db.Credit(ctx, "a1", -900); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := db.RepayLoan(ctx, "l1", "a1", 500); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	got, _ := db.GetLoan(ctx, "l1")
	if got.Repaid != 0 {
		t.Fatalf("failed repayment was recorded: %d", got.Repaid)
	}
}

func TestAccrueAndDefault(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addAgent(t, db, "a1", 0)

	terms := economy.DefaultCatalog().Loans[economy.LoanShort]
	l, _ := economy.NewLoan("l1", "a1", economy.LoanShort, terms, 5000, 2, epoch, 10*time.Minute)
	db.CreateLoan(ctx, l)

	got, closed, err := db.AccrueInterest(ctx, "l1", 1)
	if err != nil || closed {
		t.Fatalf("accrue: closed=%v err=%v", closed, err)
	}
	if got.Repaid != l.DailyInterest {
		t.Fatalf("repaid = %d, want %d", got.Repaid, l.DailyInterest)
	}

	if ok, err := db.DefaultIfOverdue(ctx, "l1", epoch); err != nil || ok {
		t.Fatalf("loan defaulted before due: %v %v", ok, err)
	}
	late := epoch.Add(time.Hour)
	if ok, err := db.DefaultIfOverdue(ctx, "l1", late); err != nil || !ok {
		t.Fatalf("overdue loan not defaulted: %v %v", ok, err)
	}
	if ok, _ := db.DefaultIfOverdue(ctx, "l1", late); ok {
		t.Fatalf("defaulted loan transitioned twice")
	}
	a, _ := db.GetAgent(ctx, "a1")
	if a.Tier != economy.TierC {
		t.Fatalf("tier = %s, want C", a.Tier)
	}
	if has, _ := db.HasDefaulted(ctx, "a1"); !has {
		t.Fatalf("HasDefaulted = false")
	}
	if _, _, err := db.AccrueInterest(ctx, "l1", 1); err != nil {
		t.Fatalf("accrue on defaulted: %v", err)
	}
	final, _ := db.GetLoan(ctx, "l1")
	if final.Repaid != got.Repaid || final.Status != economy.LoanDefaulted {
		t.Fatalf("terminal loan mutated: %+v", final)
	}
}

func TestRecordDemandReprices(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.SeedMarket(ctx, []*economy.MarketPrice{economy.NewMarketPrice(economy.ItemFood, 500, 1000)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cached, err := db.GetPrice(ctx, economy.ItemFood)
	if err != nil || cached.CurrentPrice != 500 {
		t.Fatalf("seeded price = %+v, %v", cached, err)
	}

	p, err := db.RecordDemand(ctx, economy.ItemFood, 200)
	if err != nil {
		t.Fatalf("record demand: %v", err)
	}
	if p.CurrentPrice != 425 || p.Trend != economy.TrendDown {
		t.Fatalf("price=%d trend=%s, want 425/down", p.CurrentPrice, p.Trend)
	}

	got, _ := db.GetPrice(ctx, economy.ItemFood)
	if got.CurrentPrice != 425 {
		t.Fatalf("cache served stale price %d", got.CurrentPrice)
	}
	if len(got.History) != 1 {
		t.Fatalf("history = %v", got.History)
	}

	again, _ := db.Reprice(ctx, economy.ItemFood)
	if again.CurrentPrice != 425 {
		t.Fatalf("reprice without counter change moved price to %d", again.CurrentPrice)
	}

	if _, err := db.RecordSupply(ctx, economy.ItemFood, -5000); err != nil {
		t.Fatalf("record supply: %v", err)
	}
	drained, _ := db.GetPrice(ctx, economy.ItemFood)
	if drained.Supply != 0 || drained.CurrentPrice != 500 {
		t.Fatalf("drained supply = %v price = %d", drained.Supply, drained.CurrentPrice)
	}

	if _, err := db.RecordDemand(ctx, economy.ItemCar, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unseeded item, got %v", err)
	}
}

func TestDebitRejectsNegativeAmount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addAgent(t, db, "a1", 100)

	if err := db.Debit(ctx, "a1", -1_000_000); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
	a, _ := db.GetAgent(ctx, "a1")
	if a.Balance != 100 {
		t.Fatalf("balance = %d, want 100", a.Balance)
	}
}

func TestBuyIsAtomic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addAgent(t, db, "a1", 1000)
	if err := db.SeedMarket(ctx, []*economy.MarketPrice{economy.NewMarketPrice(economy.ItemFood, 500, 1000)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tr, err := db.Buy(ctx, "a1", economy.ItemFood, 2)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if tr.UnitPrice != 500 || tr.Cost != 1000 {
		t.Fatalf("trade = %+v", tr)
	}
	p, _ := db.GetPrice(ctx, economy.ItemFood)
	if p.Demand != 1002 || p.Supply != 998 || len(p.History) != 1 {
		t.Fatalf("after buy: %+v", p)
	}

	if _, err := db.Buy(ctx, "a1", economy.ItemFood, 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := db.Buy(ctx, "ghost", economy.ItemFood, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown buyer, got %v", err)
	}
	if _, err := db.Buy(ctx, "a1", economy.ItemFood, 1e300); !errors.Is(err, economy.ErrCostOverflow) {
		t.Fatalf("expected ErrCostOverflow, got %v", err)
	}
	after, _ := db.GetPrice(ctx, economy.ItemFood)
	if after.Demand != 1002 || after.Supply != 998 || len(after.History) != 1 {
		t.Fatalf("failed buys moved the market: %+v", after)
	}
	a, _ := db.GetAgent(ctx, "a1")
	if a.Balance != 0 {
		t.Fatalf("balance = %d, want 0", a.Balance)
	}
}

func TestRecordConsumption(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addAgent(t, db, "a1", 1000)
	if err := db.SeedMarket(ctx, []*economy.MarketPrice{economy.NewMarketPrice(economy.ItemFood, 500, 1000)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	lines, err := db.RecordConsumption(ctx, "a1", []Trade{{Item: economy.ItemFood, Quantity: 10}}, 0.7, epoch.UnixMilli())
	if err != nil {
		t.Fatalf("record consumption: %v", err)
	}
	if len(lines) != 1 || lines[0].UnitPrice != 425 || lines[0].Cost != 4250 {
		t.Fatalf("lines = %+v", lines)
	}
	pop, _ := db.GetPopulation(ctx, "a1")
	if pop.Satisfaction != 0.7 {
		t.Fatalf("satisfaction = %v, want 0.7", pop.Satisfaction)
	}

	_, err = db.RecordConsumption(ctx, "ghost", []Trade{{Item: economy.ItemFood, Quantity: 10}}, 0.7, epoch.UnixMilli())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	p, _ := db.GetPrice(ctx, economy.ItemFood)
	if p.Demand != 1010 {
		t.Fatalf("demand = %v, want 1010", p.Demand)
	}
}

func TestAuctionSettlement(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addAgent(t, db, "seller", 1_000_000)
	addAgent(t, db, "buyer", 5000)
	seller := "seller"
	addParcel(t, db, "p1", 1000, &seller)

	spec := economy.DefaultCatalog().Facility(economy.FacilityRetail)
	f := economy.NewFacility("f1", "p1", "seller", economy.FacilityRetail, spec, epoch)
	db.CreateFacility(ctx, f, spec.BuildCost)
	delta := economy.EfficiencyDelta(f.Type, spec, 20)
	if err := db.Hire(ctx, "f1", "seller", 20, delta); err != nil {
		t.Fatalf("hire: %v", err)
	}

	a := &Auction{
		ID: "au1", ParcelID: "p1", SellerID: &seller, Reason: ReasonListing,
		MinBid: 1000, Status: AuctionOpen, EndsAt: epoch.Add(time.Hour).UnixMilli(), CreatedAt: epoch.UnixMilli(),
	}
	if err := db.OpenAuction(ctx, a); err != nil {
		t.Fatalf("open auction: %v", err)
	}
	if _, err := db.ClaimParcel(ctx, "p1", "buyer"); !errors.Is(err, ErrConflict) {
		t.Fatalf("parcel under auction was claimable: %v", err)
	}

	if _, err := db.PlaceBid(ctx, "au1", "seller", 2000, epoch); !errors.Is(err, ErrConflict) {
		t.Fatalf("seller bid accepted: %v", err)
	}
	if _, err := db.PlaceBid(ctx, "au1", "buyer", 999, epoch); !errors.Is(err, ErrConflict) {
		t.Fatalf("bid under minimum accepted: %v", err)
	}
	if _, err := db.PlaceBid(ctx, "au1", "buyer", 6000, epoch); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("unfunded bid accepted: %v", err)
	}
	if _, err := db.PlaceBid(ctx, "au1", "buyer", 4000, epoch); err != nil {
		t.Fatalf("bid: %v", err)
	}

	expired, err := db.ExpiredAuctions(ctx, epoch.Add(2*time.Hour))
	if err != nil || len(expired) != 1 {
		t.Fatalf("expired = %v, %v", expired, err)
	}
	status, err := db.SettleAuction(ctx, expired[0], []Layoff{{FacilityID: "f1", Workers: 20, Delta: delta}})
	if err != nil || status != AuctionSold {
		t.Fatalf("settle = %s, %v", status, err)
	}

	p, _ := db.GetParcel(ctx, "p1")
	if !p.OwnedBy("buyer") || p.AuctionID != nil {
		t.Fatalf("parcel not transferred: %+v", p)
	}
	moved, _ := db.GetFacility(ctx, "f1")
	if moved.OwnerID != "buyer" || moved.Workers != 0 {
		t.Fatalf("facility not transferred cleanly: %+v", moved)
	}
	pop, _ := db.GetPopulation(ctx, "seller")
	if pop.Employed != 0 {
		t.Fatalf("seller workers not released: %+v", pop)
	}
	buyer, _ := db.GetAgent(ctx, "buyer")
	if buyer.Balance != 1000 {
		t.Fatalf("buyer balance = %d, want 1000", buyer.Balance)
	}
}

func TestOutbox(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	events := []Event{
		{AgentID: "a1", Type: "tick", Payload: `{}`, Day: 1, CreatedAt: epoch.UnixMilli()},
		{AgentID: "a1", Type: "tick", Payload: `{}`, Day: 2, CreatedAt: epoch.UnixMilli()},
		{AgentID: "a2", Type: "tick", Payload: `{}`, Day: 2, CreatedAt: epoch.UnixMilli()},
	}
	if err := db.AppendEvents(ctx, events); err != nil {
		t.Fatalf("append: %v", err)
	}
	pending, err := db.PendingEvents(ctx, 10, epoch)
	if err != nil || len(pending) != 3 {
		t.Fatalf("pending = %d, %v", len(pending), err)
	}

	if err := db.MarkDelivered(ctx, []int64{pending[0].ID}, epoch); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if err := db.MarkFailed(ctx, []int64{pending[1].ID}, "status 400", true, 5, epoch); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		db.MarkFailed(ctx, []int64{pending[2].ID}, "status 503", false, 2, epoch)
	}

	depth, _ := db.OutboxDepth(ctx)
	if depth != 0 {
		t.Fatalf("outbox depth = %d, want 0", depth)
	}
	recent, _ := db.RecentEvents(ctx, "a2", 5)
	if len(recent) != 1 || !recent[0].Dead || recent[0].Attempts != 2 {
		t.Fatalf("retry exhaustion not recorded: %+v", recent)
	}
}

func TestPendingEventsHonourBackoff(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.AppendEvents(ctx, []Event{{AgentID: "a1", Type: "tick", Payload: `{}`, Day: 1, CreatedAt: epoch.UnixMilli()}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	pending, _ := db.PendingEvents(ctx, 10, epoch)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	retryAt := epoch.Add(time.Minute)
	if err := db.MarkFailed(ctx, []int64{pending[0].ID}, "status 503", false, 5, retryAt); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if held, _ := db.PendingEvents(ctx, 10, epoch.Add(30*time.Second)); len(held) != 0 {
		t.Fatalf("event redelivered during backoff: %+v", held)
	}
	due, _ := db.PendingEvents(ctx, 10, retryAt)
	if len(due) != 1 || due[0].Attempts != 1 || due[0].NextAttemptAt == nil || *due[0].NextAttemptAt != retryAt.UnixMilli() {
		t.Fatalf("due events = %+v", due)
	}
	if depth, _ := db.OutboxDepth(ctx); depth != 1 {
		t.Fatalf("outbox depth = %d, want 1 while backing off", depth)
	}
}
