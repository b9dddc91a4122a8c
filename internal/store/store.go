package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/edvart/dotastats/internal/classify"
)

// ErrConflict is returned when a write would create a second row for a unique key.
var ErrConflict = errors.New("conflicting row")

// RadiantSlotLimit is the first player slot belonging to Dire.
const RadiantSlotLimit = 100

// Player is a Steam profile, refreshed from the Web API on its own schedule.
type Player struct {
	SteamID      uint64
	PersonaName  string
	ProfileURL   string
	Avatar       string
	AvatarMedium string
	AvatarFull   string
	LastLogoff   *time.Time
	LastRefresh  time.Time
}

// IDOrVanity returns the custom URL segment of the player's profile
// (https://steamcommunity.com/id/<vanity>/), falling back to the Steam id.
func (p *Player) IDOrVanity() string {
	parts := strings.Split(strings.TrimRight(p.ProfileURL, "/"), "/")
	if len(parts) >= 2 && parts[len(parts)-1] != "" {
		return parts[len(parts)-1]
	}
	return strconv.FormatUint(p.SteamID, 10)
}

// Hero is reference data loaded out of band.
type Hero struct {
	ID         int
	ClientName string
	Name       string
}

// CodeName strips the client prefix (npc_dota_hero_chaos_knight -> chaos_knight).
func (h *Hero) CodeName() string {
	return strings.TrimPrefix(h.ClientName, "npc_dota_hero_")
}

// URLName turns "Phantom Lancer" into "Phantom-Lancer".
func (h *Hero) URLName() string {
	return strings.ReplaceAll(h.Name, " ", "-")
}

// Item is reference data loaded out of band.
type Item struct {
	ID         int
	ClientName string
}

// CodeName strips the client prefix (item_blink -> blink). All recipes share one icon.
func (i *Item) CodeName() string {
	if strings.Contains(i.ClientName, "recipe") {
		return "recipe"
	}
	return strings.TrimPrefix(i.ClientName, "item_")
}

// QueueEntry is a match seen during a sequence scan whose details have not been stored yet.
type QueueEntry struct {
	MatchID     uint64
	MatchSeqNum uint64
	StartTime   time.Time
	LobbyType   int
	QueuedAt    time.Time
	Players     []QueuePlayer
}

// QueuePlayer is one participant of a queued match.
type QueuePlayer struct {
	AccountID *uint64 // nil for bots and for players with a private profile; IsBot tells them apart
	Slot      int
	HeroID    int
	IsBot     bool
}

// Match is a detailed match with its picks/bans and player entries.
type Match struct {
	MatchID               uint64
	MatchSeqNum           uint64
	Season                int
	RadiantWin            bool
	Duration              int // Duration in seconds
	StartTime             time.Time
	TowerStatusRadiant    int
	TowerStatusDire       int
	BarracksStatusRadiant int
	BarracksStatusDire    int
	Cluster               int
	FirstBloodTime        int
	LobbyType             int
	HumanPlayers          int
	LeagueID              int
	PositiveVotes         int
	NegativeVotes         int
	GameMode              int
	LastRefresh           time.Time

	PicksBans []PickBan
	Players   []PlayerEntry
}

// PickBan is one draft action, in draft order.
type PickBan struct {
	IsPick bool
	HeroID int
	Team   int
	Order  int
}

// PlayerEntry is one participant's performance in a detailed match.
type PlayerEntry struct {
	AccountID    *uint64 // nil for bots and for players with a private profile; IsBot tells them apart
	Slot         int
	HeroID       int
	Items        [6]*int
	Kills        int64
	Deaths       int64
	Assists      int64
	LeaverStatus *int
	Gold         int64
	LastHits     int64
	Denies       int64
	GoldPerMin   int64
	XPPerMin     int64
	GoldSpent    int64
	HeroDamage   int64
	TowerDamage  int64
	HeroHealing  int64
	Level        int

	AbilityUpgrades Blob
	AdditionalUnits Blob

	IsBot bool
}

// Winner returns "radiant" or "dire" based on the match result.
func (m *Match) Winner() string {
	if m.RadiantWin {
		return "radiant"
	}
	return "dire"
}

// DurationFormatted returns the duration as H:MM:SS (e.g. "0:45:32").
func (m *Match) DurationFormatted() string {
	hours := m.Duration / 3600
	minutes := m.Duration % 3600 / 60
	seconds := m.Duration % 60
	return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
}

func (m *Match) Radiant() []PlayerEntry {
	var out []PlayerEntry
	for _, p := range m.Players {
		if p.Slot < RadiantSlotLimit {
			out = append(out, p)
		}
	}
	return out
}

func (m *Match) Dire() []PlayerEntry {
	var out []PlayerEntry
	for _, p := range m.Players {
		if p.Slot >= RadiantSlotLimit {
			out = append(out, p)
		}
	}
	return out
}

func (m *Match) GameModeLabel() string  { return classify.GameModeLabel(m.GameMode) }
func (m *Match) LobbyTypeLabel() string { return classify.LobbyTypeLabel(m.LobbyType) }

func (m *Match) IsLowPriority() bool {
	return classify.IsLowPriority(classify.Facts{
		LobbyType:          m.LobbyType,
		HumanPlayers:       m.HumanPlayers,
		Duration:           m.Duration,
		TowerStatusRadiant: m.TowerStatusRadiant,
		TowerStatusDire:    m.TowerStatusDire,
	})
}

func (e *QueueEntry) LobbyTypeLabel() string { return classify.LobbyTypeLabel(e.LobbyType) }

// Blob is an opaque serialized payload stored as text. A nil Blob is NULL.
type Blob []byte

func (b Blob) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return string(b), nil
}

func (b *Blob) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*b = nil
	case []byte:
		*b = append(Blob(nil), v...)
	case string:
		*b = Blob(v)
	default:
		return fmt.Errorf("blob: unsupported scan type %T", src)
	}
	return nil
}

// ListOptions pages and filters ListMatches.
type ListOptions struct {
	ExcludeLowPriority bool
	Limit              int
	Offset             int
}

// PlayerSearch criteria are or-ed together.
type PlayerSearch struct {
	Name       string
	ProfileURL string
	SteamID    string // ignored unless it parses as an integer
	Limit      int
}

// Store is the persistence layer shared by ingestion and the read API.
type Store interface {
	GetPlayer(ctx context.Context, steamID uint64) (*Player, error)
	UpsertPlayers(ctx context.Context, players []Player) error
	TouchPlayers(ctx context.Context, steamIDs []uint64, at time.Time) error
	SearchPlayers(ctx context.Context, q PlayerSearch) ([]Player, error)
	PlayersRefreshedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Player, error)

	GetHero(ctx context.Context, heroID int) (*Hero, error)
	UpsertHero(ctx context.Context, hero *Hero) error
	GetItem(ctx context.Context, itemID int) (*Item, error)
	UpsertItem(ctx context.Context, item *Item) error

	InitCursor(ctx context.Context) (uint64, error)
	GetCursor(ctx context.Context) (uint64, error)
	SetCursor(ctx context.Context, seq uint64) error

	EnqueueMatch(ctx context.Context, entry *QueueEntry) (bool, error)
	InsertQueueEntry(ctx context.Context, entry *QueueEntry) (bool, error)
	KnownMatchIDs(ctx context.Context, fn func(matchID uint64)) error
	OldestQueueEntry(ctx context.Context) (*QueueEntry, error)
	GetQueueEntry(ctx context.Context, matchID uint64) (*QueueEntry, error)
	RequeueMatch(ctx context.Context, matchID uint64, at time.Time) error
	QueueLength(ctx context.Context) (int, error)

	CommitMatch(ctx context.Context, match *Match) error
	GetMatch(ctx context.Context, matchID uint64) (*Match, error)
	ListMatches(ctx context.Context, opts ListOptions) ([]Match, error)
	MatchRefreshedBefore(ctx context.Context, cutoff time.Time) (*Match, error)
	TouchMatch(ctx context.Context, matchID uint64, at time.Time) error

	Ping(ctx context.Context) error
	Close() error
}
