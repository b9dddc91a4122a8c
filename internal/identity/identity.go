// Package identity converts between the 32-bit account ids reported inside match payloads
// and the 64-bit Steam ids used everywhere in the store.
package identity

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paralin/go-steam/protocol/steamlang"
	"github.com/paralin/go-steam/steamid"
)

// AccountIDOffset is the 64-bit id of account 0 (public universe, individual, instance 1).
const AccountIDOffset uint64 = 76561197960265728

// AnonymousAccountID is reported in place of the real account id when a player's
// match history is private.
const AnonymousAccountID uint32 = math.MaxUint32

const desktopInstance = 1

// ErrNotIndividual is returned for Steam ids outside the individual account range.
var ErrNotIndividual = errors.New("not an individual public-universe steam id")

// Kind classifies a match participant.
type Kind int

const (
	Human     Kind = iota // regular account id
	Anonymous             // private profile, account id replaced by AnonymousAccountID
	Bot                   // no account id at all
)

func (k Kind) String() string {
	switch k {
	case Human:
		return "human"
	case Anonymous:
		return "anonymous"
	case Bot:
		return "bot"
	default:
		return "unknown"
	}
}

// Classify reports whether the participant behind accountID is a bot (no account id at all),
// an anonymous human (private profile sentinel) or a regular human.
func Classify(accountID *uint32) Kind {
	switch {
	case accountID == nil:
		return Bot
	case *accountID == AnonymousAccountID:
		return Anonymous
	default:
		return Human
	}
}

// ToSteam64 converts an account id to its Steam id. A nil account id yields nil.
func ToSteam64(accountID *uint32) *uint64 {
	if accountID == nil {
		return nil
	}
	id := steamid.NewIdAdv(*accountID, desktopInstance,
		int32(steamlang.EUniverse_Public), steamlang.EAccountType_Individual).ToUint64()
	return &id
}

// ToAccountID is the inverse of ToSteam64.
func ToAccountID(steamID uint64) (uint32, error) {
	if steamID < AccountIDOffset || steamID-AccountIDOffset > math.MaxUint32 {
		return 0, fmt.Errorf("steam id %d: %w", steamID, ErrNotIndividual)
	}
	return steamid.SteamId(steamID).GetAccountId(), nil
}

// ParseAccountID parses a decimal account id. Empty input means "absent" and returns nil.
func ParseAccountID(v string) (*uint32, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parse account id %q: %w", v, err)
	}
	id := uint32(n)
	return &id, nil
}

// ParseSteamID parses a decimal 64-bit Steam id.
func ParseSteamID(v string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse steam id %q: %w", v, err)
	}
	return n, nil
}
