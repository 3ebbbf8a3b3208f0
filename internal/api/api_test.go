package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/openarcade/scoreboard/internal/api"
	"github.com/openarcade/scoreboard/internal/board"
	"github.com/openarcade/scoreboard/internal/domain"
	"github.com/openarcade/scoreboard/internal/errors"
	"github.com/openarcade/scoreboard/internal/event"
	"github.com/openarcade/scoreboard/internal/registry"
	"github.com/openarcade/scoreboard/internal/scoreboard"
)

type verifierFunc func(ctx context.Context, code string) ([]domain.Identity, error)

func (f verifierFunc) ExchangeCodeForIdentities(ctx context.Context, code string) ([]domain.Identity, error) {
	return f(ctx, code)
}

type fixture struct {
	engine *gin.Engine
	api    *api.API
	eb     *event.Bus
	redis  redis.UniversalClient
}

func makeFixture(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(context.Background()).Err(), "should be able to ping redis")

	verifier := verifierFunc(func(_ context.Context, code string) ([]domain.Identity, error) {
		if code != "valid-code" {
			return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("identity verification failed"))
		}
		return []domain.Identity{
			{ID: "100", Name: "Player One", Image: "https://img.example/100", Link: "https://twitch.tv/one/"},
		}, nil
	})

	eb := event.NewBus()
	sb, err := scoreboard.NewService(scoreboard.Config{
		EventBus: eb,
		Registry: registry.NewService(registry.Config{Redis: rc, Prefix: "test"}),
		Verifier: verifier,
		Store:    board.NewStore(filepath.Join(t.TempDir(), "scoreboard.json"), 2),
		Games:    []string{"A", "B"},
	})
	require.NoError(t, err)

	e := gin.New()
	a := api.New(api.Config{
		Engine:       e,
		EventBus:     eb,
		Scoreboard:   sb,
		Redis:        rc,
		PubsubPrefix: "test",
	})

	return &fixture{engine: e, api: a, eb: eb, redis: rc}
}

func do(e *gin.Engine, method, path string, query url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path+"?"+query.Encode(), nil)
	e.ServeHTTP(w, req)
	return w
}

func authenticate(t *testing.T, e *gin.Engine) string {
	w := do(e, http.MethodPost, "/auth", url.Values{"code": {"valid-code"}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Users, 1)
	return resp.Token
}

func TestAuth(t *testing.T) {
	f := makeFixture(t)
	e := f.engine

	tests := map[string]struct {
		query url.Values
		code  int
	}{
		"valid code":   {url.Values{"code": {"valid-code"}}, http.StatusOK},
		"missing code": {url.Values{}, http.StatusBadRequest},
		"bad code":     {url.Values{"code": {"bad-code"}}, http.StatusUnauthorized},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := do(e, http.MethodPost, "/auth", tt.query)
			require.Equal(t, tt.code, w.Code)
		})
	}
}

func TestAuth_ResponseShape(t *testing.T) {
	f := makeFixture(t)
	e := f.engine

	w := do(e, http.MethodPost, "/auth", url.Values{"code": {"valid-code"}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
		Users []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Image string `json:"image"`
			Link  string `json:"link"`
		} `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Token, 16)
	require.Equal(t, "100", resp.Users[0].ID)
	require.Equal(t, "Player One", resp.Users[0].Name)
}

func TestFastAuth(t *testing.T) {
	f := makeFixture(t)
	e := f.engine
	token := authenticate(t, e)

	w := do(e, http.MethodPost, "/fast-auth", url.Values{"code": {token}})
	require.Equal(t, http.StatusOK, w.Code)

	var users []api.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 1)
	require.Equal(t, "100", users[0].ID)
}

func TestFastAuth_UnknownToken(t *testing.T) {
	f := makeFixture(t)
	e := f.engine

	w := do(e, http.MethodPost, "/fast-auth", url.Values{"code": {"neverissued0000x"}})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpload(t *testing.T) {
	f := makeFixture(t)
	e := f.engine
	token := authenticate(t, e)

	query := func(kv map[string]string) url.Values {
		q := url.Values{
			"game":  {"0"},
			"score": {"100"},
			"user":  {"100"},
			"code":  {token},
			"proof": {"https://proof.example/run"},
		}
		for k, v := range kv {
			if v == "" {
				q.Del(k)
			} else {
				q.Set(k, v)
			}
		}
		return q
	}

	tests := map[string]struct {
		query url.Values
		code  int
	}{
		"valid submission":    {query(nil), http.StatusOK},
		"missing proof":       {query(map[string]string{"proof": ""}), http.StatusBadRequest},
		"malformed game":      {query(map[string]string{"game": "first"}), http.StatusBadRequest},
		"game out of range":   {query(map[string]string{"game": "7"}), http.StatusBadRequest},
		"malformed score":     {query(map[string]string{"score": "many"}), http.StatusBadRequest},
		"negative score":      {query(map[string]string{"score": "-5"}), http.StatusBadRequest},
		"unknown token":       {query(map[string]string{"code": "neverissued0000x"}), http.StatusForbidden},
		"identity not proved": {query(map[string]string{"user": "999"}), http.StatusForbidden},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := do(e, http.MethodPost, "/upload", tt.query)
			require.Equal(t, tt.code, w.Code)
		})
	}
}

func TestBoard(t *testing.T) {
	f := makeFixture(t)
	e, eb := f.engine, f.eb
	token := authenticate(t, e)

	w := do(e, http.MethodPost, "/upload", url.Values{
		"game":  {"1"},
		"score": {"12.5"},
		"user":  {"100"},
		"code":  {token},
		"proof": {"https://proof.example/run"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	eb.Stop()

	w = do(e, http.MethodGet, "/board", url.Values{})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var resp api.BoardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, []string{"A", "B"}, resp.Games)
	require.Len(t, resp.Board, 2)
	require.Empty(t, resp.Board[0])
	require.Len(t, resp.Board[1], 1)
	require.Equal(t, api.EntryView{
		Place: 1,
		Name:  "Player One",
		Score: 12.5,
		Image: "https://img.example/100",
		Link:  "https://twitch.tv/one/",
		Proof: "https://proof.example/run",
	}, resp.Board[1][0])
}

func TestPublishBoardUpdated(t *testing.T) {
	f := makeFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := f.redis.Subscribe(ctx, "test:user:100")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err, "subscription should be established")

	err = f.api.PublishBoardUpdated(ctx, domain.EventBoardUpdated{
		Board: domain.Board{
			Game: 0,
			Entries: []domain.BoardEntry{
				{Place: 1, ID: "100", Name: "Player One", Score: 3},
			},
		},
	})
	require.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var n struct {
		Event string `json:"event"`
		Data  struct {
			Game    int `json:"game"`
			Entries []struct {
				Place int    `json:"place"`
				Name  string `json:"name"`
				Score string `json:"score"`
			} `json:"entries"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
	require.Equal(t, domain.EventNameBoardUpdated, n.Event)
	require.Equal(t, 0, n.Data.Game)
	require.Len(t, n.Data.Entries, 1)
	require.Equal(t, "3", n.Data.Entries[0].Score)
}
