// Seasons: a fixed number of days, after which final standings are
// announced and every agent moves into the next season.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
)

func (s *Simulation) rollSeason(ctx context.Context, r *Report) error {
	days := s.Game.SeasonDays
	if days <= 0 || r.Day == 0 || r.Day%uint64(days) != 0 {
		return nil
	}

	ended := s.Season()
	next := SeasonOf(r.Day+1, days)
	if next <= ended {
		next = ended + 1
	}

	if err := s.DB.SetSeason(ctx, next); err != nil {
		return fmt.Errorf("advance season: %w", err)
	}
	if err := s.DB.SaveMeta(ctx, MetaSeason, strconv.Itoa(next)); err != nil {
		return fmt.Errorf("save season: %w", err)
	}
	s.setSeason(next)

	slog.Info("season ended", "season", ended, "day", r.Day, "next", next)
	s.broadcast(EventSeasonEnded, map[string]any{
		"season":    ended,
		"day":       r.Day,
		"standings": s.Leaders.Top(s.Game.LeaderboardSize),
	})
	return nil
}
