package game

import (
	"encoding/json"
	"fmt"
)

// ActionKind is the wire tag of an action.
type ActionKind string

const (
	KindLogIn        ActionKind = "LogIn"
	KindCollectFood  ActionKind = "CollectFood"
	KindCollectWater ActionKind = "CollectWater"
	KindCollectWood  ActionKind = "CollectWood"
	KindEndTurn      ActionKind = "EndTurn"
)

// Action is a request a player submits to the game. The set of implementations
// is closed: LogIn, CollectFood, CollectWater, CollectWood and EndTurn.
type Action interface {
	Kind() ActionKind
	isAction()
}

// LogIn joins the game under the sender's player id.
type LogIn struct {
	PlayerName string
}

type CollectFood struct{}

type CollectWater struct{}

// CollectWood gathers wood, risking Draws extra bag draws.
type CollectWood struct {
	Draws uint8
}

// EndTurn passes play to the next connected player.
type EndTurn struct{}

func (LogIn) Kind() ActionKind        { return KindLogIn }
func (CollectFood) Kind() ActionKind  { return KindCollectFood }
func (CollectWater) Kind() ActionKind { return KindCollectWater }
func (CollectWood) Kind() ActionKind  { return KindCollectWood }
func (EndTurn) Kind() ActionKind      { return KindEndTurn }

func (LogIn) isAction()        {}
func (CollectFood) isAction()  {}
func (CollectWater) isAction() {}
func (CollectWood) isAction()  {}
func (EndTurn) isAction()      {}

// envelope is the tagged JSON form of every action.
type envelope struct {
	Type       ActionKind `json:"type"`
	PlayerName string     `json:"playerName,omitempty"`
	Draws      uint8      `json:"draws,omitempty"`
}

// DecodeAction parses an action from its JSON wire form.
func DecodeAction(data []byte) (Action, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action: %w", err)
	}

	switch env.Type {
	case KindLogIn:
		return LogIn{PlayerName: env.PlayerName}, nil
	case KindCollectFood:
		return CollectFood{}, nil
	case KindCollectWater:
		return CollectWater{}, nil
	case KindCollectWood:
		return CollectWood{Draws: env.Draws}, nil
	case KindEndTurn:
		return EndTurn{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Type)
	}
}

// EncodeAction renders an action in its JSON wire form.
func EncodeAction(action Action) ([]byte, error) {
	env := envelope{}
	switch a := action.(type) {
	case LogIn:
		env.PlayerName = a.PlayerName
	case CollectWood:
		env.Draws = a.Draws
	case CollectFood, CollectWater, EndTurn:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, action)
	}
	env.Type = action.Kind()
	return json.Marshal(env)
}
