package dotaapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL), WithMinInterval(0))
}

func TestMatchHistoryBySequence(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != matchHistoryBySeqPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("key") != "test-key" || q.Get("start_at_match_seq_num") != "101" || q.Get("matches_requested") != "25" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"result":{"status":1,"matches":[
			{"match_id":7000000001,"match_seq_num":101,"players":[{"account_id":4294967295,"player_slot":0,"hero_id":5}]},
			{"match_id":7000000002,"match_seq_num":102,"players":[]}
		]}}`))
	})

	recs, err := c.MatchHistoryBySequence(context.Background(), 101, 25)
	if err != nil {
		t.Fatalf("MatchHistoryBySequence: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	id, err := recs[0].Uint64("match_id")
	if err != nil || id != 7000000001 {
		t.Errorf("match_id = %d, %v", id, err)
	}
	players, err := recs[0].Records("players")
	if err != nil || len(players) != 1 {
		t.Fatalf("players = %v, %v", players, err)
	}
	acc, err := players[0].OptUint32("account_id")
	if err != nil || acc == nil || *acc != 4294967295 {
		t.Errorf("account_id = %v, %v", acc, err)
	}
}

func TestMatchHistoryBySequenceBadStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"status":8,"statusDetail":"matches_requested must be greater than 0"}}`))
	})
	if _, err := c.MatchHistoryBySequence(context.Background(), 1, 0); err == nil {
		t.Fatal("expected an error for status 8")
	}
}

func TestMatchDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("match_id") {
		case "42":
			w.Write([]byte(`{"result":{"match_id":42,"radiant_win":true,"duration":1800}}`))
		default:
			w.Write([]byte(`{"result":{"error":"Match ID not found"}}`))
		}
	})

	rec, err := c.MatchDetails(context.Background(), 42)
	if err != nil {
		t.Fatalf("MatchDetails: %v", err)
	}
	if d, _ := rec.Int("duration"); d != 1800 {
		t.Errorf("duration = %d, want 1800", d)
	}

	if _, err := c.MatchDetails(context.Background(), 43); !errors.Is(err, ErrMatchUnavailable) {
		t.Errorf("error = %v, want ErrMatchUnavailable", err)
	}
}

func TestPlayerSummaries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("steamids"); got != "76561197960265729,76561197960265730" {
			t.Errorf("steamids = %q", got)
		}
		w.Write([]byte(`{"response":{"players":[{"steamid":"76561197960265729","personaname":"one"}]}}`))
	})

	recs, err := c.PlayerSummaries(context.Background(), []uint64{76561197960265729, 76561197960265730})
	if err != nil {
		t.Fatalf("PlayerSummaries: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d players, want 1", len(recs))
	}
	if name, _ := recs[0].String("personaname"); name != "one" {
		t.Errorf("personaname = %q", name)
	}

	if _, err := c.PlayerSummaries(context.Background(), make([]uint64, MaxSummaryIDs+1)); err == nil {
		t.Error("expected an error above the id limit")
	}
}

func TestClientErrors(t *testing.T) {
	if _, err := NewClient("").MatchDetails(context.Background(), 1); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("error = %v, want ErrNoAPIKey", err)
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	if _, err := c.MatchDetails(context.Background(), 1); !errors.Is(err, ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
}

func TestMinIntervalHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"players":[]}}`))
	}))
	defer srv.Close()
	c := NewClient("k", WithBaseURL(srv.URL), WithMinInterval(time.Hour))

	if _, err := c.PlayerSummaries(context.Background(), []uint64{1}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.PlayerSummaries(ctx, []uint64{1}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second call error = %v, want deadline exceeded", err)
	}
}
