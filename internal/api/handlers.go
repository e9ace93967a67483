package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/game"
	"github.com/talgya/tycoon/internal/world"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID    string `json:"agent_id"`
		AgentName  string `json:"agent_name"`
		WebhookURL string `json:"webhook_url"`
	}
	if !decode(w, r, &req) {
		return
	}
	reg, err := s.Svc.Register(r.Context(), req.AgentID, req.AgentName, req.WebhookURL)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeStatus(w, http.StatusCreated, reg)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if !decode(w, r, &req) {
		return
	}
	a, err := s.Svc.Login(r.Context(), req.APIKey)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, map[string]any{"agent": a, "token": req.APIKey, "token_type": "Bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	st, err := s.Svc.Status(r.Context(), agentFrom(r).ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit")
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	events, err := s.DB.RecentEvents(r.Context(), agentFrom(r).ID, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, events)
}

// Land

func (s *Server) handleParcels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.Svc.Parcels(r.Context(), game.ParcelQuery{
		Type:        world.ParcelType(q.Get("type")),
		Available:   q.Get("available") != "false",
		MinLocation: queryInt(r, "min_location"),
		MaxPrice:    int64(queryInt(r, "max_price")),
		Limit:       queryInt(r, "limit"),
		Offset:      queryInt(r, "offset"),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handleParcel(w http.ResponseWriter, r *http.Request) {
	p, err := s.Svc.Parcel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handlePurchaseParcel(w http.ResponseWriter, r *http.Request) {
	p, err := s.Svc.PurchaseParcel(r.Context(), agentFrom(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleListParcel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinBid int64 `json:"min_bid"`
	}
	if !decode(w, r, &req) {
		return
	}
	a, err := s.Svc.ListForAuction(r.Context(), agentFrom(r).ID, chi.URLParam(r, "id"), req.MinBid)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeStatus(w, http.StatusCreated, a)
}

func (s *Server) handleAuctions(w http.ResponseWriter, r *http.Request) {
	list, err := s.Svc.Auctions(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	a, err := s.Svc.Bid(r.Context(), agentFrom(r).ID, chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, a)
}

// Facilities

func (s *Server) handleFacilities(w http.ResponseWriter, r *http.Request) {
	list, err := s.Svc.Facilities(r.Context(), agentFrom(r).ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParcelID     string               `json:"parcel_id"`
		FacilityType economy.FacilityType `json:"facility_type"`
	}
	if !decode(w, r, &req) {
		return
	}
	f, err := s.Svc.Build(r.Context(), agentFrom(r).ID, req.ParcelID, req.FacilityType)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeStatus(w, http.StatusCreated, f)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	f, err := s.Svc.Upgrade(r.Context(), agentFrom(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, f)
}

type staffRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleHire(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := s.Svc.Hire(r.Context(), agentFrom(r).ID, chi.URLParam(r, "id"), req.Count)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, f)
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := s.Svc.Fire(r.Context(), agentFrom(r).ID, chi.URLParam(r, "id"), req.Count)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, f)
}

// Market

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	list, err := s.Svc.MarketPrices(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	p, err := s.Svc.MarketPrice(r.Context(), economy.Item(chi.URLParam(r, "item")))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Svc.MarketStatus(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req game.Order
	if !decode(w, r, &req) {
		return
	}
	rc, err := s.Svc.Purchase(r.Context(), agentFrom(r).ID, req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, rc)
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []game.Order `json:"items"`
	}
	if !decode(w, r, &req) {
		return
	}
	out, err := s.Svc.Consume(r.Context(), agentFrom(r).ID, req.Items)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Svc.Leaderboard(queryInt(r, "limit")))
}

// Loans

func (s *Server) handleLoans(w http.ResponseWriter, r *http.Request) {
	st, err := s.Svc.LoanStatus(r.Context(), agentFrom(r).ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleApplyLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanType     economy.LoanType `json:"loan_type"`
		Amount       int64            `json:"amount"`
		DurationDays int              `json:"duration_days"`
	}
	if !decode(w, r, &req) {
		return
	}
	l, err := s.Svc.ApplyLoan(r.Context(), agentFrom(r).ID, req.LoanType, req.Amount, req.DurationDays)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeStatus(w, http.StatusCreated, l)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	l, err := s.Svc.RepayLoan(r.Context(), agentFrom(r).ID, chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, l)
}

// Admin

func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	depth, err := s.DB.OutboxDepth(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	st := s.Eng.Status()
	out := map[string]any{
		"engine":       st,
		"season":       s.Svc.Sim.Season(),
		"outbox_depth": depth,
		"stream_conns": s.Stream.Len(),
	}
	if rep := s.Svc.Sim.LastReport(); rep != nil {
		out["last_report"] = rep
	}
	writeJSON(w, out)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.Eng.Pause()
	writeJSON(w, s.Eng.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.Eng.Resume()
	writeJSON(w, s.Eng.Status())
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	queued := s.Eng.Trigger()
	writeStatus(w, http.StatusAccepted, map[string]any{"queued": queued, "day": s.Eng.Day()})
}
