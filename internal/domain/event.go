package domain

const (
	EventNameTokenIssued  = "token.issued"
	EventNameBoardUpdated = "board.updated"
)

type EventTokenIssued struct {
	Token      string
	Identities []Identity
}

func (EventTokenIssued) Name() string { return EventNameTokenIssued }

type EventBoardUpdated struct {
	Board Board
}

func (EventBoardUpdated) Name() string { return EventNameBoardUpdated }
