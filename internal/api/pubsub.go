package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/openarcade/scoreboard/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	BoardUpdate struct {
		Game    int           `json:"game"`
		Entries []EntryUpdate `json:"entries"`
	}

	EntryUpdate struct {
		Place int    `json:"place"`
		Name  string `json:"name"`
		Score string `json:"score"`
	}
)

// PublishBoardUpdated notifies every identity on the updated board's top list
// over its own channel, so connected clients can refresh their placement.
func (a *API) PublishBoardUpdated(ctx context.Context, e domain.EventBoardUpdated) error {
	b := e.Board

	data := BoardUpdate{
		Game:    b.Game,
		Entries: make([]EntryUpdate, 0, len(b.Entries)),
	}

	ids := make([]string, 0, len(b.Entries))
	for _, entry := range b.Entries {
		ids = append(ids, entry.ID)
		data.Entries = append(data.Entries, EntryUpdate{
			Place: entry.Place,
			Name:  entry.Name,
			Score: strconv.FormatFloat(entry.Score, 'f', -1, 64),
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, id := range ids {
		id := id
		eg.Go(func() error {
			return a.publishNotification(ctx, id, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
