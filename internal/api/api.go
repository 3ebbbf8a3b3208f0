package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/openarcade/scoreboard/internal/domain"
	"github.com/openarcade/scoreboard/internal/errors"
	"github.com/openarcade/scoreboard/internal/event"
	"github.com/openarcade/scoreboard/internal/scoreboard"
)

type Config struct {
	Engine       *gin.Engine
	EventBus     *event.Bus
	Scoreboard   *scoreboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	sb *scoreboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		sb:     c.Scoreboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	e := c.Engine
	e.Use(CORS(), RequestLogger())

	e.POST("/auth", a.Auth)
	e.POST("/fast-auth", a.FastAuth)
	e.GET("/board", a.Board)
	e.POST("/upload", a.Upload)

	c.EventBus.Subscribe(domain.EventNameBoardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishBoardUpdated(ctx, e.(domain.EventBoardUpdated))
	})

	return a
}

type (
	User struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Image string `json:"image"`
		Link  string `json:"link"`
	}

	AuthResponse struct {
		Token string `json:"token"`
		Users []User `json:"users"`
	}

	// EntryView is a board entry as served to clients. The identity id is
	// deliberately not exposed on the public board.
	EntryView struct {
		Place int     `json:"place"`
		Name  string  `json:"name"`
		Score float64 `json:"score"`
		Image string  `json:"image"`
		Link  string  `json:"link"`
		Proof string  `json:"proof"`
	}

	BoardResponse struct {
		Board [][]EntryView `json:"board"`
		Games []string      `json:"games"`
	}
)

// Auth exchanges an OAuth authorization code for a session token and the
// identities it proves.
func (a *API) Auth(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("missing code")))
		return
	}

	resp, err := a.sb.VerifyAndRegister(c.Request.Context(), code)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Token: resp.Token,
		Users: toUsers(resp.Identities),
	})
}

// FastAuth re-fetches the identities behind an already issued token.
func (a *API) FastAuth(c *gin.Context) {
	token := c.Query("code")
	if token == "" {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("missing code")))
		return
	}

	identities, err := a.sb.Redeem(c.Request.Context(), token)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toUsers(identities))
}

// Board serves the top-10 view of every configured game.
func (a *API) Board(c *gin.Context) {
	resp, err := a.sb.GetBoard(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	out := BoardResponse{
		Board: make([][]EntryView, 0, len(resp.Boards)),
		Games: resp.Games,
	}
	for _, b := range resp.Boards {
		views := make([]EntryView, 0, len(b))
		for _, e := range b {
			views = append(views, EntryView{
				Place: e.Place,
				Name:  e.Name,
				Score: e.Score,
				Image: e.Image,
				Link:  e.Link,
				Proof: e.Proof,
			})
		}
		out.Board = append(out.Board, views)
	}

	c.JSON(http.StatusOK, out)
}

// Upload submits a score. All parameters arrive as string-typed query values;
// parsing into the constrained types happens here, the service never sees
// malformed input.
func (a *API) Upload(c *gin.Context) {
	var (
		game  = c.Query("game")
		score = c.Query("score")
		user  = c.Query("user")
		token = c.Query("code")
		proof = c.Query("proof")
	)
	if game == "" || score == "" || user == "" || token == "" || proof == "" {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("missing parameter")))
		return
	}

	gameIndex, err := strconv.Atoi(game)
	if err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("malformed game index")))
		return
	}

	d, err := decimal.NewFromString(score)
	if err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("malformed score")))
		return
	}

	err = a.sb.SubmitScore(c.Request.Context(), scoreboard.SubmitScoreRequest{
		Game:       gameIndex,
		Token:      token,
		IdentityID: user,
		Score:      d.InexactFloat64(),
		Proof:      proof,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusOK)
}

func toUsers(identities []domain.Identity) []User {
	users := make([]User, 0, len(identities))
	for _, id := range identities {
		users = append(users, User{
			ID:    id.ID,
			Name:  id.Name,
			Image: id.Image,
			Link:  id.Link,
		})
	}

	return users
}

// abort maps an error to its coarse HTTP status. Only the code and message
// are exposed, never the wrapped cause.
func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
