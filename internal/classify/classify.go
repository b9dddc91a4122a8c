// Package classify holds the label mappings and the low-priority filter applied to
// detailed matches.
package classify

import (
	"math/bits"
	"strconv"

	"github.com/paralin/go-dota2/protocol"
)

// Tower status bits, per team.
const (
	TowerBottom1      = 0x1
	TowerBottom2      = 0x2
	TowerBottom3      = 0x4
	TowerMiddle1      = 0x8
	TowerMiddle2      = 0x10
	TowerMiddle3      = 0x20
	TowerTop1         = 0x40
	TowerTop2         = 0x80
	TowerTop3         = 0x100
	TowerAncientBot   = 0x200
	TowerAncientTop   = 0x400
	TowersIntact      = 0x7FF // 2047
	towerMaskWidth    = 11
	barracksMaskWidth = 6
)

// Barracks status bits, per team.
const (
	BarracksBotMelee  = 0x1
	BarracksBotRanged = 0x2
	BarracksMidMelee  = 0x4
	BarracksMidRanged = 0x8
	BarracksTopMelee  = 0x10
	BarracksTopRanged = 0x20
	BarracksIntact    = 0x3F
)

const (
	LobbyPublic     = 0
	LobbyPractice   = 1
	LobbyTournament = 2
	LobbyTutorial   = 3
	LobbyCoopBots   = 4
	LobbyTeamMatch  = 5
)

// Thresholds below which a match is not worth listing.
const (
	MinHumanPlayers   = 10
	MinDurationSecond = 480
)

var gameModes = map[int]string{
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_AP):         "All Pick",
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_CM):         "Captain's Mode",
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_RD):         "Random Draft",
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_SD):         "Single Draft",
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_AR):         "All Random",
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_INTRO):      "Death Mode",
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_HW):         "Diretide",
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_REVERSE_CM): "Reverse Captain's Mode",
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_XMAS):       "The Greeviling",
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_TUTORIAL):   "Tutorial",
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_MO):         "Mid Only",
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_LP):         "Least Played",
	int(protocol.DOTA_GameMode_DOTA_GAMEMODE_POOL1):      "New Player Pool",
}

var lobbyTypes = map[int]string{
	LobbyPublic:     "Public",
	LobbyPractice:   "Practice",
	LobbyTournament: "Tournament",
	LobbyTutorial:   "Tutorial",
	LobbyCoopBots:   "Co-op vs Bots",
	LobbyTeamMatch:  "Team Match",
}

// GameModeLabel returns the display name of a game mode, or the code itself when unknown.
func GameModeLabel(mode int) string {
	if label, ok := gameModes[mode]; ok {
		return label
	}
	return strconv.Itoa(mode)
}

// LobbyTypeLabel returns the display name of a lobby type, or the code itself when unknown.
func LobbyTypeLabel(lobby int) string {
	if label, ok := lobbyTypes[lobby]; ok {
		return label
	}
	return strconv.Itoa(lobby)
}

// Facts is the subset of a match the low-priority filter looks at.
type Facts struct {
	LobbyType          int
	HumanPlayers       int
	Duration           int
	TowerStatusRadiant int
	TowerStatusDire    int
}

// IsLowPriority reports whether a match should be left out of listings: bot lobbies,
// matches missing human players, short matches, and matches where no tower fell.
func IsLowPriority(f Facts) bool {
	return f.LobbyType == LobbyCoopBots ||
		f.HumanPlayers < MinHumanPlayers ||
		f.Duration < MinDurationSecond ||
		(f.TowerStatusRadiant == TowersIntact && f.TowerStatusDire == TowersIntact)
}

// TowersStanding counts the towers still up in a tower status mask.
func TowersStanding(mask int) int {
	return bits.OnesCount(uint(mask) & (1<<towerMaskWidth - 1))
}

// BarracksStanding counts the barracks still up in a barracks status mask.
func BarracksStanding(mask int) int {
	return bits.OnesCount(uint(mask) & (1<<barracksMaskWidth - 1))
}
