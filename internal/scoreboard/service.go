package scoreboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/openarcade/scoreboard/internal/board"
	"github.com/openarcade/scoreboard/internal/domain"
	"github.com/openarcade/scoreboard/internal/errors"
	"github.com/openarcade/scoreboard/internal/event"
	"github.com/openarcade/scoreboard/internal/registry"
	"github.com/openarcade/scoreboard/internal/upstream"
)

const topSize = 10

type Store interface {
	Load() (board.Collection, error)
	Save(board.Collection) error
}

type Config struct {
	EventBus *event.Bus
	Registry *registry.Service
	Verifier upstream.Verifier
	Store    Store
	Games    []string
}

// Service orchestrates identity verification, score submission and board
// reads. One mutex guards the whole collection: a save rewrites the whole
// document anyway, so finer locking would not buy anything at this load.
type Service struct {
	eb       *event.Bus
	registry *registry.Service
	verifier upstream.Verifier
	store    Store
	games    []string

	mu     sync.Mutex
	boards board.Collection
}

func NewService(c Config) (*Service, error) {
	boards, err := c.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("scoreboard: load boards: %w", err)
	}
	if len(boards) != len(c.Games) {
		return nil, fmt.Errorf("scoreboard: persisted %d boards for %d configured games", len(boards), len(c.Games))
	}

	return &Service{
		eb:       c.EventBus,
		registry: c.Registry,
		verifier: c.Verifier,
		store:    c.Store,
		games:    c.Games,
		boards:   boards,
	}, nil
}

type VerifyAndRegisterResponse struct {
	Token      string
	Identities []domain.Identity
}

// VerifyAndRegister exchanges an authorization code with the identity
// provider and issues a session token proving ownership of the returned
// identities.
func (s *Service) VerifyAndRegister(ctx context.Context, code string) (*VerifyAndRegisterResponse, error) {
	identities, err := s.verifier.ExchangeCodeForIdentities(ctx, code)
	if err != nil {
		return nil, err
	}

	token, err := s.registry.Issue(ctx, identities)
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventTokenIssued{
		Token:      token,
		Identities: identities,
	})

	return &VerifyAndRegisterResponse{
		Token:      token,
		Identities: identities,
	}, nil
}

// Redeem returns the identities proved by a previously issued token.
func (s *Service) Redeem(ctx context.Context, token string) ([]domain.Identity, error) {
	return s.registry.Lookup(ctx, token)
}

type SubmitScoreRequest struct {
	Game       int
	Token      string
	IdentityID string
	Score      float64
	Proof      string
}

// SubmitScore validates a submission against the registry and applies it to
// the game's board. No board state changes before all validation passes.
// When the save fails, the in-memory boards already carry the submission;
// at most that one submission is lost on a crash before the next save.
func (s *Service) SubmitScore(ctx context.Context, req SubmitScoreRequest) error {
	if req.Game < 0 || req.Game >= len(s.games) {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("game index %d out of range", req.Game))
	}
	if req.Score < 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("score must not be negative"))
	}

	identities, err := s.registry.Lookup(ctx, req.Token)
	if err != nil {
		if errors.Convert(err).Code == errors.CodeNotFound {
			return errors.New(errors.CodePermissionDenied,
				errors.WithMessagef("token does not prove any identity"))
		}
		return err
	}

	identity, ok := findIdentity(identities, req.IdentityID)
	if !ok {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("token does not prove identity %s", req.IdentityID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := &s.boards[req.Game]
	b.Upsert(identity, req.Score, req.Proof)
	b.RecomputeRanks()

	if err := s.store.Save(s.boards); err != nil {
		return errors.Internal(err)
	}

	s.eb.Publish(ctx, domain.EventBoardUpdated{
		Board: domain.Board{
			Game:    req.Game,
			Entries: b.TopN(topSize),
		},
	})

	return nil
}

type GetBoardResponse struct {
	Boards [][]domain.BoardEntry
	Games  []string
}

// GetBoard returns the top-10 view of every configured game. Pure read, no
// mutation, no persistence.
func (s *Service) GetBoard(_ context.Context) (*GetBoardResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	boards := make([][]domain.BoardEntry, 0, len(s.boards))
	for _, b := range s.boards {
		boards = append(boards, b.TopN(topSize))
	}

	return &GetBoardResponse{
		Boards: boards,
		Games:  s.games,
	}, nil
}

func findIdentity(identities []domain.Identity, id string) (domain.Identity, bool) {
	for _, identity := range identities {
		if identity.ID == id {
			return identity, true
		}
	}

	return domain.Identity{}, false
}
