package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/edvart/dotastats/internal/identity"
	"github.com/edvart/dotastats/internal/store"
)

const maxPageSize = 200

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeHTTPError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"error": code})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	writeHTTPError(w, http.StatusInternalServerError, "internal_error")
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 50
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeHTTPError(w, http.StatusServiceUnavailable, "database_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	queued, err := s.store.QueueLength(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	cursor, err := s.store.GetCursor(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queued":             queued,
		"last_match_seq_num": cursor,
	})
}

func matchSummary(m *store.Match) map[string]any {
	return map[string]any{
		"match_id":           m.MatchID,
		"match_seq_num":      m.MatchSeqNum,
		"start_time":         m.StartTime,
		"duration":           m.Duration,
		"duration_formatted": m.DurationFormatted(),
		"winner":             m.Winner(),
		"game_mode":          m.GameModeLabel(),
		"lobby_type":         m.LobbyTypeLabel(),
		"human_players":      m.HumanPlayers,
		"low_priority":       m.IsLowPriority(),
		"last_refresh":       m.LastRefresh,
	}
}

func playerEntry(p store.PlayerEntry) map[string]any {
	items := make([]any, len(p.Items))
	for i, it := range p.Items {
		if it != nil {
			items[i] = *it
		}
	}
	out := map[string]any{
		"player_slot":   p.Slot,
		"hero_id":       p.HeroID,
		"items":         items,
		"kills":         p.Kills,
		"deaths":        p.Deaths,
		"assists":       p.Assists,
		"leaver_status": p.LeaverStatus,
		"gold":          p.Gold,
		"last_hits":     p.LastHits,
		"denies":        p.Denies,
		"gold_per_min":  p.GoldPerMin,
		"xp_per_min":    p.XPPerMin,
		"gold_spent":    p.GoldSpent,
		"hero_damage":   p.HeroDamage,
		"tower_damage":  p.TowerDamage,
		"hero_healing":  p.HeroHealing,
		"level":         p.Level,
		"is_bot":        p.IsBot,
	}
	if p.AccountID != nil {
		out["steam_id"] = strconv.FormatUint(*p.AccountID, 10)
	}
	if p.AbilityUpgrades != nil {
		out["ability_upgrades"] = json.RawMessage(p.AbilityUpgrades)
	}
	if p.AdditionalUnits != nil {
		out["additional_units"] = json.RawMessage(p.AdditionalUnits)
	}
	return out
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	all := r.URL.Query().Get("all") == "1"

	matches, err := s.store.ListMatches(r.Context(), store.ListOptions{
		ExcludeLowPriority: !all,
		Limit:              limit,
		Offset:             offset,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(matches))
	for i := range matches {
		out = append(out, matchSummary(&matches[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  out,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseUint(chi.URLParam(r, "matchID"), 10, 64)
	if err != nil {
		writeHTTPError(w, http.StatusBadRequest, "invalid_match_id")
		return
	}
	m, err := s.store.GetMatch(r.Context(), matchID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if m == nil {
		writeHTTPError(w, http.StatusNotFound, "match_not_found")
		return
	}

	out := matchSummary(m)
	out["season"] = m.Season
	out["cluster"] = m.Cluster
	out["first_blood_time"] = m.FirstBloodTime
	out["league_id"] = m.LeagueID
	out["positive_votes"] = m.PositiveVotes
	out["negative_votes"] = m.NegativeVotes
	out["tower_status"] = map[string]any{"radiant": m.TowerStatusRadiant, "dire": m.TowerStatusDire}
	out["barracks_status"] = map[string]any{"radiant": m.BarracksStatusRadiant, "dire": m.BarracksStatusDire}

	picks := make([]map[string]any, 0, len(m.PicksBans))
	for _, pb := range m.PicksBans {
		picks = append(picks, map[string]any{
			"is_pick": pb.IsPick,
			"hero_id": pb.HeroID,
			"team":    pb.Team,
			"order":   pb.Order,
		})
	}
	out["picks_bans"] = picks

	for side, players := range map[string][]store.PlayerEntry{"radiant": m.Radiant(), "dire": m.Dire()} {
		entries := make([]map[string]any, 0, len(players))
		for _, p := range players {
			entries = append(entries, playerEntry(p))
		}
		out[side] = entries
	}
	writeJSON(w, http.StatusOK, out)
}

func player(p *store.Player) map[string]any {
	out := map[string]any{
		"steam_id":      strconv.FormatUint(p.SteamID, 10),
		"id_or_vanity":  p.IDOrVanity(),
		"persona_name":  p.PersonaName,
		"profile_url":   p.ProfileURL,
		"avatar":        p.Avatar,
		"avatar_medium": p.AvatarMedium,
		"avatar_full":   p.AvatarFull,
		"last_refresh":  p.LastRefresh,
	}
	if acc, err := identity.ToAccountID(p.SteamID); err == nil {
		out["account_id"] = acc
	}
	if p.LastLogoff != nil {
		out["last_logoff"] = *p.LastLogoff
	}
	return out
}

func (s *Server) handleSearchPlayers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := store.PlayerSearch{
		Name:       q.Get("name"),
		ProfileURL: q.Get("profileurl"),
		SteamID:    q.Get("id"),
	}
	if search.Name == "" && search.ProfileURL == "" && search.SteamID == "" {
		writeHTTPError(w, http.StatusBadRequest, "missing_query")
		return
	}
	search.Limit, _ = strconv.Atoi(q.Get("limit"))
	if search.Limit > maxPageSize {
		search.Limit = maxPageSize
	}

	players, err := s.store.SearchPlayers(r.Context(), search)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(players))
	for i := range players {
		out = append(out, player(&players[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

// handleGetPlayer accepts either a 64-bit Steam id or a 32-bit account id.
func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "steamID")
	steamID, err := identity.ParseSteamID(raw)
	if err != nil {
		writeHTTPError(w, http.StatusBadRequest, "invalid_steam_id")
		return
	}
	if steamID < identity.AccountIDOffset {
		acc, err := identity.ParseAccountID(raw)
		if err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_steam_id")
			return
		}
		steamID = *identity.ToSteam64(acc)
	}

	p, err := s.store.GetPlayer(r.Context(), steamID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if p == nil {
		writeHTTPError(w, http.StatusNotFound, "player_not_found")
		return
	}
	writeJSON(w, http.StatusOK, player(p))
}

func (s *Server) handleGetHero(w http.ResponseWriter, r *http.Request) {
	heroID, err := strconv.Atoi(chi.URLParam(r, "heroID"))
	if err != nil {
		writeHTTPError(w, http.StatusBadRequest, "invalid_hero_id")
		return
	}
	h, err := s.store.GetHero(r.Context(), heroID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if h == nil {
		writeHTTPError(w, http.StatusNotFound, "hero_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hero_id":     h.ID,
		"name":        h.Name,
		"client_name": h.ClientName,
		"code_name":   h.CodeName(),
		"url_name":    h.URLName(),
	})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.Atoi(chi.URLParam(r, "itemID"))
	if err != nil {
		writeHTTPError(w, http.StatusBadRequest, "invalid_item_id")
		return
	}
	it, err := s.store.GetItem(r.Context(), itemID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if it == nil {
		writeHTTPError(w, http.StatusNotFound, "item_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"item_id":     it.ID,
		"client_name": it.ClientName,
		"code_name":   it.CodeName(),
	})
}
