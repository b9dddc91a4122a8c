package record

import (
	"fmt"
	"time"

	"github.com/edvart/dotastats/internal/identity"
	"github.com/edvart/dotastats/internal/store"
)

// Player maps a GetPlayerSummaries entry. LastRefresh is left for the caller to stamp.
func Player(r Record) (store.Player, error) {
	raw, err := r.String("steamid")
	if err != nil {
		return store.Player{}, err
	}
	if raw == "" {
		return store.Player{}, missing("steamid")
	}
	steamID, err := identity.ParseSteamID(raw)
	if err != nil {
		return store.Player{}, invalid("steamid", err)
	}

	p := store.Player{SteamID: steamID}
	for key, dst := range map[string]*string{
		"personaname":  &p.PersonaName,
		"profileurl":   &p.ProfileURL,
		"avatar":       &p.Avatar,
		"avatarmedium": &p.AvatarMedium,
		"avatarfull":   &p.AvatarFull,
	} {
		if *dst, err = r.String(key); err != nil {
			return store.Player{}, err
		}
	}
	if r.Has("lastlogoff") {
		ts, err := r.Int64("lastlogoff")
		if err != nil {
			return store.Player{}, err
		}
		t := time.Unix(ts, 0).UTC()
		p.LastLogoff = &t
	}
	return p, nil
}

// participant resolves the account id of a match participant. Bots have no account id;
// anonymous players report a sentinel and are stored without an identity.
func participant(r Record) (accountID *uint64, present bool, err error) {
	acc, err := r.OptUint32("account_id")
	if err != nil {
		return nil, false, err
	}
	if identity.Classify(acc) == identity.Human {
		accountID = identity.ToSteam64(acc)
	}
	return accountID, acc != nil, nil
}

// QueuePlayer maps a participant of a sequence-scan summary. ok is false for empty
// slots (hero id 0), which must not be stored.
func QueuePlayer(r Record) (p store.QueuePlayer, ok bool, err error) {
	hero, err := r.Int("hero_id")
	if err != nil {
		return p, false, err
	}
	if hero == 0 {
		return p, false, nil
	}
	slot, err := r.Int("player_slot")
	if err != nil {
		return p, false, err
	}
	accountID, present, err := participant(r)
	if err != nil {
		return p, false, err
	}
	return store.QueuePlayer{
		AccountID: accountID,
		Slot:      slot,
		HeroID:    hero,
		IsBot:     !present,
	}, true, nil
}

// QueueEntry maps a match summary from a sequence scan. QueuedAt is left for the caller.
func QueueEntry(r Record) (store.QueueEntry, error) {
	var (
		e   store.QueueEntry
		err error
	)
	if e.MatchID, err = r.Uint64("match_id"); err != nil {
		return e, err
	}
	if e.MatchSeqNum, err = r.Uint64("match_seq_num"); err != nil {
		return e, err
	}
	start, err := r.Int64("start_time")
	if err != nil {
		return e, err
	}
	e.StartTime = time.Unix(start, 0).UTC()
	if e.LobbyType, err = r.Int("lobby_type"); err != nil {
		return e, err
	}

	players, err := r.Records("players")
	if err != nil {
		return e, err
	}
	for i, pr := range players {
		p, ok, err := QueuePlayer(pr)
		if err != nil {
			return e, fmt.Errorf("players[%d]: %w", i, err)
		}
		if ok {
			e.Players = append(e.Players, p)
		}
	}
	return e, nil
}

// PickBan maps one draft action.
func PickBan(r Record) (store.PickBan, error) {
	var (
		pb  store.PickBan
		err error
	)
	if pb.IsPick, err = r.Bool("is_pick"); err != nil {
		return pb, err
	}
	if pb.HeroID, err = r.Int("hero_id"); err != nil {
		return pb, err
	}
	if pb.Team, err = r.Int("team"); err != nil {
		return pb, err
	}
	if pb.Order, err = r.Int("order"); err != nil {
		return pb, err
	}
	return pb, nil
}

var itemKeys = [6]string{"item_0", "item_1", "item_2", "item_3", "item_4", "item_5"}

// PlayerEntry maps a participant of a detailed match. ok is false for empty slots
// (hero id 0). A participant counts as a bot when it has no account id or no leaver status.
func PlayerEntry(r Record) (p store.PlayerEntry, ok bool, err error) {
	if p.HeroID, err = r.Int("hero_id"); err != nil {
		return p, false, err
	}
	if p.HeroID == 0 {
		return store.PlayerEntry{}, false, nil
	}
	if p.Slot, err = r.Int("player_slot"); err != nil {
		return p, false, err
	}
	var present bool
	if p.AccountID, present, err = participant(r); err != nil {
		return p, false, err
	}

	for i, key := range itemKeys {
		item, err := r.Int(key)
		if err != nil {
			return p, false, err
		}
		if item != 0 {
			p.Items[i] = &item
		}
	}

	for key, dst := range map[string]*int64{
		"kills":        &p.Kills,
		"deaths":       &p.Deaths,
		"assists":      &p.Assists,
		"gold":         &p.Gold,
		"last_hits":    &p.LastHits,
		"denies":       &p.Denies,
		"gold_per_min": &p.GoldPerMin,
		"xp_per_min":   &p.XPPerMin,
		"gold_spent":   &p.GoldSpent,
		"hero_damage":  &p.HeroDamage,
		"tower_damage": &p.TowerDamage,
		"hero_healing": &p.HeroHealing,
	} {
		if *dst, err = r.Int64(key); err != nil {
			return p, false, err
		}
	}
	if p.Level, err = r.Int("level"); err != nil {
		return p, false, err
	}
	if p.LeaverStatus, err = r.OptInt("leaver_status"); err != nil {
		return p, false, err
	}
	if p.AbilityUpgrades, err = r.Raw("ability_upgrades"); err != nil {
		return p, false, err
	}
	if p.AdditionalUnits, err = r.Raw("additional_units"); err != nil {
		return p, false, err
	}

	p.IsBot = !present || p.LeaverStatus == nil
	return p, true, nil
}

// Match maps a GetMatchDetails result including picks/bans and players.
// LastRefresh is left for the caller to stamp.
func Match(r Record) (store.Match, error) {
	var (
		m   store.Match
		err error
	)
	if m.MatchID, err = r.Uint64("match_id"); err != nil {
		return m, err
	}
	if m.MatchSeqNum, err = r.Uint64("match_seq_num"); err != nil {
		return m, err
	}
	if m.RadiantWin, err = r.Bool("radiant_win"); err != nil {
		return m, err
	}
	start, err := r.Int64("start_time")
	if err != nil {
		return m, err
	}
	m.StartTime = time.Unix(start, 0).UTC()

	for key, dst := range map[string]*int{
		"season":                  &m.Season,
		"duration":                &m.Duration,
		"tower_status_radiant":    &m.TowerStatusRadiant,
		"tower_status_dire":       &m.TowerStatusDire,
		"barracks_status_radiant": &m.BarracksStatusRadiant,
		"barracks_status_dire":    &m.BarracksStatusDire,
		"cluster":                 &m.Cluster,
		"first_blood_time":        &m.FirstBloodTime,
		"lobby_type":              &m.LobbyType,
		"human_players":           &m.HumanPlayers,
		"leagueid":                &m.LeagueID,
		"positive_votes":          &m.PositiveVotes,
		"negative_votes":          &m.NegativeVotes,
		"game_mode":               &m.GameMode,
	} {
		if *dst, err = r.Int(key); err != nil {
			return m, err
		}
	}

	picks, err := r.Records("picks_bans")
	if err != nil {
		return m, err
	}
	for i, pr := range picks {
		pb, err := PickBan(pr)
		if err != nil {
			return m, fmt.Errorf("picks_bans[%d]: %w", i, err)
		}
		m.PicksBans = append(m.PicksBans, pb)
	}

	players, err := r.Records("players")
	if err != nil {
		return m, err
	}
	for i, pr := range players {
		p, ok, err := PlayerEntry(pr)
		if err != nil {
			return m, fmt.Errorf("players[%d]: %w", i, err)
		}
		if ok {
			m.Players = append(m.Players, p)
		}
	}
	return m, nil
}
