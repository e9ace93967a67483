package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/talgya/tycoon/internal/agents"
	"github.com/talgya/tycoon/internal/config"
	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/persistence"
	"github.com/talgya/tycoon/internal/world"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type testSim struct {
	*Simulation
	now time.Time
	ids int
}

func newTestSim(t *testing.T) *testSim {
	t.Helper()
	ctx := context.Background()
	db, err := persistence.Open(ctx, persistence.DialectSQLite, filepath.Join(t.TempDir(), "tycoon.db"), persistence.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	var seed []*economy.MarketPrice
	for _, it := range economy.Items {
		seed = append(seed, economy.NewMarketPrice(it, cfg.Economy.BasePrices[it], cfg.Economy.InitialVolume))
	}
	if err := db.SeedMarket(ctx, seed); err != nil {
		t.Fatalf("seed market: %v", err)
	}

	ts := &testSim{Simulation: NewSimulation(db, cfg), now: epoch}
	ts.Clock = func() time.Time { return ts.now }
	ts.NewID = func() string {
		ts.ids++
		return fmt.Sprintf("id-%d", ts.ids)
	}
	return ts
}

func (ts *testSim) addAgent(t *testing.T, id string, balance int64) {
	t.Helper()
	cfg := agents.DefaultSpawnConfig()
	cfg.StartingBalance = balance
	a, p := agents.NewSpawner(cfg).Spawn(id, "agent-"+id, "key-"+id, "", 1, ts.now)
	if err := ts.DB.CreateAgent(context.Background(), a, p, nil); err != nil {
		t.Fatalf("create agent: %v", err)
	}
}

func (ts *testSim) addParcel(t *testing.T, id, owner string, price int64) {
	t.Helper()
	p := &world.Parcel{
		ID: id, Type: world.ParcelIndustrial, Area: 100, PowerCapacity: 500,
		BasePrice: price, OwnerID: &owner, CreatedAt: ts.now.UnixMilli(),
	}
	if err := ts.DB.InsertParcels(context.Background(), []*world.Parcel{p}); err != nil {
		t.Fatalf("insert parcel: %v", err)
	}
}

// addFacility builds a facility whose construction window opens at start.
func (ts *testSim) addFacility(t *testing.T, id, parcel, owner string, typ economy.FacilityType, start time.Time) *economy.Facility {
	t.Helper()
	f := economy.NewFacility(id, parcel, owner, typ, ts.Catalog.Facility(typ), start)
	if err := ts.DB.CreateFacility(context.Background(), f, 0); err != nil {
		t.Fatalf("create facility: %v", err)
	}
	return f
}

func (ts *testSim) balance(t *testing.T, id string) int64 {
	t.Helper()
	a, err := ts.DB.GetAgent(context.Background(), id)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	return a.Balance
}

func (ts *testSim) report(day uint64) *Report {
	return newReport(day, ts.Season(), ts.now)
}

func TestFailingPhasesDoNotStopTheDay(t *testing.T) {
	ts := newTestSim(t)
	var ran []string
	record := func(name string, err error) Phase {
		return Phase{name, func(ctx context.Context, r *Report) error {
			ran = append(ran, name)
			return err
		}}
	}
	ts.phases = []Phase{
		record("first", nil),
		{"panics", func(ctx context.Context, r *Report) error { panic("boom") }},
		record("errors", errors.New("store unavailable")),
		record("last", nil),
	}

	r := ts.TickDay(context.Background(), 1)
	if want := []string{"first", "errors", "last"}; !slices.Equal(ran, want) {
		t.Fatalf("ran %v, want %v", ran, want)
	}
	if want := []string{"panics", "errors"}; !slices.Equal(r.Failed, want) {
		t.Fatalf("failed %v, want %v", r.Failed, want)
	}
	if ts.LastReport() != r {
		t.Fatal("last report not recorded")
	}
	if v, err := ts.DB.GetMeta(context.Background(), MetaDay); err != nil || v != "1" {
		t.Fatalf("day meta = %q, %v", v, err)
	}
}

func TestSlowPhaseHoldsUpLaterPhasesAndDays(t *testing.T) {
	ts := newTestSim(t)
	inSlow := make(chan struct{}, 4)
	release := make(chan struct{})
	var order []string
	ts.phases = []Phase{
		{"slow", func(ctx context.Context, r *Report) error {
			inSlow <- struct{}{}
			<-release
			order = append(order, "slow")
			return nil
		}},
		{"last", func(ctx context.Context, r *Report) error {
			order = append(order, "last")
			return nil
		}},
	}

	e := NewEngine(time.Hour, 0)
	done := make(chan uint64, 4)
	e.OnDay = func(ctx context.Context, day uint64) {
		ts.TickDay(ctx, day)
		done <- day
	}
	runEngine(t, e)

	e.Trigger()
	<-inSlow
	// Fires during the blocked day collapse into one.
	e.Trigger()
	e.Trigger()
	select {
	case <-done:
		t.Fatal("day finished while its phase was blocked")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)

	waitDay(t, done)
	if d := waitDay(t, done); d != 2 {
		t.Fatalf("second day = %d, want 2", d)
	}
	select {
	case d := <-done:
		t.Fatalf("coalesced fire ran as day %d", d)
	case <-time.After(50 * time.Millisecond):
	}
	if want := []string{"slow", "last", "slow", "last"}; !slices.Equal(order, want) {
		t.Fatalf("phase order %v, want %v", order, want)
	}
}

func TestConstructionSkipsProductionUntilDone(t *testing.T) {
	ts := newTestSim(t)
	ctx := context.Background()
	ts.addAgent(t, "a1", 100000)
	ts.addParcel(t, "p1", "a1", 3000)
	f := ts.addFacility(t, "f1", "p1", "a1", economy.FacilityAgriculture, ts.now)

	r := ts.report(1)
	if err := ts.settleProduction(ctx, r); err != nil {
		t.Fatalf("production: %v", err)
	}
	if r.Facilities != 0 || r.Revenue != 0 || ts.balance(t, "a1") != 100000 {
		t.Fatalf("facility under construction produced: %+v", r)
	}

	ts.now = ts.now.Add(economy.BuildDuration(1))
	r = ts.report(2)
	if err := ts.settleProduction(ctx, r); err != nil {
		t.Fatalf("production: %v", err)
	}
	spec := ts.Catalog.Facility(economy.FacilityAgriculture)
	revenue := Revenue(spec.BaseProduction, ts.Catalog.BasePrices[economy.ItemFood])
	cost := OperatingCharge(f, spec)
	if r.Facilities != 1 || r.Revenue != revenue {
		t.Fatalf("facilities=%d revenue=%d, want 1 and %d", r.Facilities, r.Revenue, revenue)
	}
	if got := ts.balance(t, "a1"); got != 100000+revenue-cost {
		t.Fatalf("balance = %d, want %d", got, 100000+revenue-cost)
	}

	if err := ts.completeConstruction(ctx, r); err != nil {
		t.Fatalf("construction: %v", err)
	}
	got, err := ts.DB.GetFacility(ctx, "f1")
	if err != nil {
		t.Fatalf("get facility: %v", err)
	}
	if got.HasWindow() || r.Completed != 1 {
		t.Fatalf("window not closed: %+v", got)
	}
}

func TestUnpaidWagesLayOffWorkforce(t *testing.T) {
	ts := newTestSim(t)
	ctx := context.Background()
	ts.addAgent(t, "a1", 0)
	ts.addParcel(t, "p1", "a1", 3000)
	ts.addFacility(t, "f1", "p1", "a1", economy.FacilityRetail, ts.now.Add(-48*time.Hour))
	spec := ts.Catalog.Facility(economy.FacilityRetail)
	delta := economy.EfficiencyDelta(economy.FacilityRetail, spec, 1)
	if err := ts.DB.Hire(ctx, "f1", "a1", 12, 12*delta); err != nil {
		t.Fatalf("hire: %v", err)
	}
	if _, err := ts.DB.Credit(ctx, "a1", -100000); err != nil {
		t.Fatalf("credit: %v", err)
	}

	r := ts.report(1)
	if err := ts.settleProduction(ctx, r); err != nil {
		t.Fatalf("production: %v", err)
	}
	if err := ts.payWages(ctx, r); err != nil {
		t.Fatalf("wages: %v", err)
	}
	if r.Layoffs != 12 || r.Wages != 0 {
		t.Fatalf("layoffs=%d wages=%d, want 12 and 0", r.Layoffs, r.Wages)
	}

	f, err := ts.DB.GetFacility(ctx, "f1")
	if err != nil {
		t.Fatalf("get facility: %v", err)
	}
	if f.Workers != 0 || f.Efficiency > 1.0+1e-9 {
		t.Fatalf("facility after layoff: workers=%d efficiency=%f", f.Workers, f.Efficiency)
	}
	p, err := ts.DB.GetPopulation(ctx, "a1")
	if err != nil {
		t.Fatalf("get population: %v", err)
	}
	if p.Employed != 0 || p.Unemployed != p.Total {
		t.Fatalf("pools not restored: %+v", p)
	}
}

func TestCriticalSatisfactionShrinksPopulation(t *testing.T) {
	ts := newTestSim(t)
	ctx := context.Background()
	ts.addAgent(t, "a1", 0)
	_, err := ts.DB.MutatePopulation(ctx, "a1", func(p *agents.Population) error {
		p.Employed, p.Unemployed = 99, 1
		p.Satisfaction = 0.1
		p.Shortage = string(agents.NeedFood)
		return nil
	})
	if err != nil {
		t.Fatalf("mutate population: %v", err)
	}

	r := ts.report(1)
	if err := ts.advancePopulation(ctx, r); err != nil {
		t.Fatalf("population: %v", err)
	}
	p, err := ts.DB.GetPopulation(ctx, "a1")
	if err != nil {
		t.Fatalf("get population: %v", err)
	}
	// floor(100 × 0.01) doubled for food.
	if p.Total != 98 || p.Employed != 98 || p.Unemployed != 0 {
		t.Fatalf("population = %+v, want total 98 all employed", p)
	}
	if r.PopulationDelta != -2 || r.Layoffs != 1 {
		t.Fatalf("delta=%d layoffs=%d", r.PopulationDelta, r.Layoffs)
	}
	if p.Satisfaction != 0 {
		t.Fatalf("satisfaction = %f, want 0 with nothing met", p.Satisfaction)
	}
}

func TestShortageAppliesPenaltyAndRecordsDemand(t *testing.T) {
	ts := newTestSim(t)
	ctx := context.Background()
	ts.addAgent(t, "a1", 1000)

	r := ts.report(1)
	if err := ts.consume(ctx, r); err != nil {
		t.Fatalf("consume: %v", err)
	}
	p, err := ts.DB.GetPopulation(ctx, "a1")
	if err != nil {
		t.Fatalf("get population: %v", err)
	}
	// 1000 credits buys two units of food at 500.
	if p.Shortage != string(agents.NeedFood) || p.FoodMet != 2 {
		t.Fatalf("population = %+v", p)
	}
	if p.Satisfaction < 0.3-1e-9 || p.Satisfaction > 0.3+1e-9 {
		t.Fatalf("satisfaction = %f, want 0.3", p.Satisfaction)
	}
	if ts.balance(t, "a1") != 0 || r.Consumption != 1000 {
		t.Fatalf("balance=%d consumption=%d", ts.balance(t, "a1"), r.Consumption)
	}
	m, err := ts.DB.GetPrice(ctx, economy.ItemFood)
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if m.Demand != ts.Catalog.InitialVolume+2 {
		t.Fatalf("food demand = %f", m.Demand)
	}
}

func TestLoanPhases(t *testing.T) {
	ts := newTestSim(t)
	ctx := context.Background()
	ts.addAgent(t, "a1", 0)

	terms := ts.Catalog.Loans[economy.LoanShort]
	l, err := economy.NewLoan("l1", "a1", economy.LoanShort, terms, 1000, 2, ts.now, ts.Game.DayLength())
	if err != nil {
		t.Fatalf("new loan: %v", err)
	}
	if err := ts.DB.CreateLoan(ctx, l); err != nil {
		t.Fatalf("create loan: %v", err)
	}

	r := ts.report(1)
	if err := ts.accrueInterest(ctx, r); err != nil {
		t.Fatalf("interest: %v", err)
	}
	got, err := ts.DB.GetLoan(ctx, "l1")
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	if got.Repaid != l.DailyInterest || got.Status != economy.LoanActive {
		t.Fatalf("after one day: %+v", got)
	}

	ts.now = ts.now.Add(3 * ts.Game.DayLength())
	r = ts.report(4)
	if err := ts.checkOverdue(ctx, r); err != nil {
		t.Fatalf("overdue: %v", err)
	}
	got, _ = ts.DB.GetLoan(ctx, "l1")
	a, _ := ts.DB.GetAgent(ctx, "a1")
	if got.Status != economy.LoanDefaulted || a.Tier != economy.TierC || r.LoansDefaulted != 1 {
		t.Fatalf("loan=%s tier=%s defaulted=%d", got.Status, a.Tier, r.LoansDefaulted)
	}
}

func TestBankruptcySeizesAndSellsLand(t *testing.T) {
	ts := newTestSim(t)
	ctx := context.Background()
	ts.Game.AuctionLength = time.Hour
	ts.addAgent(t, "broke", 0)
	ts.addAgent(t, "buyer", 5000)
	ts.addParcel(t, "p1", "broke", 3000)

	l, err := economy.NewLoan("l1", "broke", economy.LoanEmergency, ts.Catalog.Loans[economy.LoanEmergency], 1000, 1, ts.now.Add(-48*time.Hour), ts.Game.DayLength())
	if err != nil {
		t.Fatalf("new loan: %v", err)
	}
	if err := ts.DB.CreateLoan(ctx, l); err != nil {
		t.Fatalf("create loan: %v", err)
	}
	if _, err := ts.DB.DefaultIfOverdue(ctx, "l1", ts.now); err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, err := ts.DB.Credit(ctx, "broke", -1500); err != nil {
		t.Fatalf("credit: %v", err)
	}

	r := ts.report(1)
	if err := ts.processAuctions(ctx, r); err != nil {
		t.Fatalf("auctions: %v", err)
	}
	a, _ := ts.DB.GetAgent(ctx, "broke")
	if !a.Bankrupt || r.Bankruptcies != 1 {
		t.Fatalf("agent not bankrupt: %+v", a)
	}
	open, err := ts.DB.OpenAuctions(ctx)
	if err != nil || len(open) != 1 {
		t.Fatalf("open auctions = %v, %v", open, err)
	}
	if open[0].MinBid != 1500 || open[0].Reason != persistence.ReasonBankruptcy {
		t.Fatalf("auction = %+v", open[0])
	}

	if _, err := ts.DB.PlaceBid(ctx, open[0].ID, "buyer", 1600, ts.now); err != nil {
		t.Fatalf("bid: %v", err)
	}
	ts.now = ts.now.Add(2 * time.Hour)
	r = ts.report(2)
	if err := ts.processAuctions(ctx, r); err != nil {
		t.Fatalf("auctions: %v", err)
	}
	p, _ := ts.DB.GetParcel(ctx, "p1")
	if !p.OwnedBy("buyer") || p.AuctionID != nil {
		t.Fatalf("parcel = %+v", p)
	}
	if got := ts.balance(t, "buyer"); got != 3400 {
		t.Fatalf("buyer balance = %d, want 3400", got)
	}
	if r.AuctionsSettled != 1 {
		t.Fatalf("settled = %d", r.AuctionsSettled)
	}
}

func TestRankOrdersByWealthThenInput(t *testing.T) {
	list := []*agents.Agent{
		{ID: "a", Wealth: 100},
		{ID: "b", Wealth: 300},
		{ID: "c", Wealth: 100},
		{ID: "d", Wealth: 200},
	}
	got := Rank(list)
	var ids []string
	for i, s := range got {
		if s.Rank != i+1 {
			t.Fatalf("rank %d at position %d", s.Rank, i)
		}
		ids = append(ids, s.AgentID)
	}
	if want := []string{"b", "d", "a", "c"}; !slices.Equal(ids, want) {
		t.Fatalf("order %v, want %v", ids, want)
	}
	if list[0].ID != "a" {
		t.Fatal("Rank reordered its input")
	}
}

func TestLeaderboardServesSnapshot(t *testing.T) {
	ts := newTestSim(t)
	ctx := context.Background()
	ts.addAgent(t, "a1", 1000)
	ts.addAgent(t, "a2", 5000)
	ts.addParcel(t, "p1", "a1", 9000)

	r := ts.report(1)
	if err := ts.rankAgents(ctx, r); err != nil {
		t.Fatalf("rank: %v", err)
	}
	top := ts.Leaders.Top(0)
	if len(top) != 2 || top[0].AgentID != "a1" || top[0].Wealth != 10000 {
		t.Fatalf("top = %+v", top)
	}

	// Reads keep serving the snapshot after state changes.
	if _, err := ts.DB.Credit(ctx, "a2", 100000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if s, ok := ts.Leaders.Lookup("a2"); !ok || s.Rank != 2 {
		t.Fatalf("lookup = %+v, %v", s, ok)
	}
	if ts.Leaders.Stale(ts.now) {
		t.Fatal("fresh snapshot reported stale")
	}
	if !ts.Leaders.Stale(ts.now.Add(2 * ts.Leaders.TTL)) {
		t.Fatal("old snapshot not reported stale")
	}
}

func TestSeasonRollsOver(t *testing.T) {
	ts := newTestSim(t)
	ctx := context.Background()
	ts.addAgent(t, "a1", 1000)

	r := ts.report(uint64(ts.Game.SeasonDays))
	if err := ts.rollSeason(ctx, r); err != nil {
		t.Fatalf("season: %v", err)
	}
	if ts.Season() != 2 {
		t.Fatalf("season = %d, want 2", ts.Season())
	}
	a, _ := ts.DB.GetAgent(ctx, "a1")
	if a.Season != 2 {
		t.Fatalf("agent season = %d", a.Season)
	}
	if err := ts.flushEvents(ctx, r); err != nil {
		t.Fatalf("flush: %v", err)
	}
	events, err := ts.DB.RecentEvents(ctx, "a1", 10)
	if err != nil || len(events) != 1 || events[0].Type != EventSeasonEnded {
		t.Fatalf("events = %+v, %v", events, err)
	}
}

func TestUnencodableEventDoesNotDropTheRest(t *testing.T) {
	ts := newTestSim(t)
	ctx := context.Background()
	ts.addAgent(t, "a1", 1000)

	ts.emit("a1", EventShortage, make(chan int))
	ts.emit("a1", EventBankrupt, map[string]int{"balance": -1})
	if err := ts.flushEvents(ctx, ts.report(1)); err != nil {
		t.Fatalf("flush: %v", err)
	}
	events, err := ts.DB.RecentEvents(ctx, "a1", 10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	if !slices.Contains(types, EventBankrupt) || slices.Contains(types, EventShortage) {
		t.Fatalf("stored event types = %v", types)
	}
}

func TestResumeAfterOutageRunsOneDay(t *testing.T) {
	ts := newTestSim(t)
	ctx := context.Background()
	ts.addAgent(t, "a1", 20000)
	ts.addParcel(t, "p1", "a1", 3000)
	ts.addFacility(t, "f1", "p1", "a1", economy.FacilityAgriculture, ts.now.Add(-48*time.Hour))

	terms := ts.Catalog.Loans[economy.LoanShort]
	l, err := economy.NewLoan("l1", "a1", economy.LoanShort, terms, 1000, 7, ts.now, ts.Game.DayLength())
	if err != nil {
		t.Fatalf("new loan: %v", err)
	}
	if err := ts.DB.CreateLoan(ctx, l); err != nil {
		t.Fatalf("create loan: %v", err)
	}
	r1 := ts.TickDay(ctx, 1)
	if len(r1.Failed) > 0 {
		t.Fatalf("day 1 failed phases %v", r1.Failed)
	}
	pop1, err := ts.DB.GetPopulation(ctx, "a1")
	if err != nil {
		t.Fatalf("get population: %v", err)
	}

	// Come back five day lengths later on a fresh simulation.
	down := ts.now.Add(5 * ts.Game.DayLength())
	sim := NewSimulation(ts.DB, config.Default())
	sim.Clock = func() time.Time { return down }
	sim.NewID = ts.NewID
	day, err := sim.Restore(ctx)
	if err != nil || day != 1 {
		t.Fatalf("restore = %d, %v; want 1", day, err)
	}

	e := NewEngine(time.Hour, day)
	started := make(chan uint64, 10)
	e.OnDay = func(ctx context.Context, day uint64) {
		sim.TickDay(ctx, day)
		started <- day
	}
	runEngine(t, e)
	e.Trigger()
	if d := waitDay(t, started); d != 2 {
		t.Fatalf("resumed day = %d, want 2", d)
	}
	select {
	case d := <-started:
		t.Fatalf("missed days were backfilled: day %d ran", d)
	case <-time.After(100 * time.Millisecond):
	}

	r2 := sim.LastReport()
	if r2 == nil || r2.Day != 2 || len(r2.Failed) > 0 {
		t.Fatalf("resumed report = %+v", r2)
	}
	if r2.Produced[economy.ItemFood] != r1.Produced[economy.ItemFood] || r2.Facilities != 1 {
		t.Fatalf("produced %v food on resume, want one day's %v", r2.Produced[economy.ItemFood], r1.Produced[economy.ItemFood])
	}
	got, err := ts.DB.GetLoan(ctx, "l1")
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	if got.Repaid != 2*l.DailyInterest || got.Status != economy.LoanActive {
		t.Fatalf("loan after resume = %+v, want two days of interest", got)
	}
	pop2, _ := ts.DB.GetPopulation(ctx, "a1")
	if pop2.Total != pop1.Total+r2.PopulationDelta {
		t.Fatalf("population %d -> %d, want one step of %d", pop1.Total, pop2.Total, r2.PopulationDelta)
	}
	if v, _ := ts.DB.GetMeta(ctx, MetaDay); v != "2" {
		t.Fatalf("stored day = %q, want 2", v)
	}
}

func TestRepeatedDaysAreDeterministic(t *testing.T) {
	ctx := context.Background()
	run := func() (*Report, []*economy.MarketPrice, *agents.Agent) {
		ts := newTestSim(t)
		ts.addAgent(t, "a1", 20000)
		ts.addParcel(t, "p1", "a1", 3000)
		ts.addFacility(t, "f1", "p1", "a1", economy.FacilityTextile, ts.now.Add(-48*time.Hour))
		var r *Report
		for day := uint64(1); day <= 2; day++ {
			r = ts.TickDay(ctx, day)
			if len(r.Failed) > 0 {
				t.Fatalf("day %d failed phases %v", day, r.Failed)
			}
			ts.now = ts.now.Add(ts.Game.DayLength())
		}
		market, err := ts.DB.ListMarket(ctx)
		if err != nil {
			t.Fatalf("list market: %v", err)
		}
		a, _ := ts.DB.GetAgent(ctx, "a1")
		return r, market, a
	}

	r1, m1, a1 := run()
	r2, m2, a2 := run()
	if a1.Balance != a2.Balance || a1.Wealth != a2.Wealth {
		t.Fatalf("agent diverged: %+v vs %+v", a1, a2)
	}
	for i := range m1 {
		if m1[i].CurrentPrice != m2[i].CurrentPrice || m1[i].Demand != m2[i].Demand || m1[i].Supply != m2[i].Supply {
			t.Fatalf("market diverged for %s", m1[i].Item)
		}
	}
	if r1.Revenue != r2.Revenue || r1.Consumption != r2.Consumption || r1.PopulationDelta != r2.PopulationDelta {
		t.Fatalf("reports diverged")
	}
}

func TestUntouchedMarketIsStable(t *testing.T) {
	ts := newTestSim(t)
	ctx := context.Background()
	for day := uint64(1); day <= 2; day++ {
		r := ts.TickDay(ctx, day)
		for _, it := range economy.Items {
			if r.Prices[it] != ts.Catalog.BasePrices[it] {
				t.Fatalf("day %d: %s = %d, want base %d", day, it, r.Prices[it], ts.Catalog.BasePrices[it])
			}
		}
	}
}
