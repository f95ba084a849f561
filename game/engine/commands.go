package engine

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidPayload = errors.New("invalid command payload")
)

// CommandKind is the wire name of a client command
type CommandKind string

const (
	KindMoveCard         CommandKind = "moveCard"
	KindAddCard          CommandKind = "addCard"
	KindTapCard          CommandKind = "tapCard"
	KindMoveCardPosition CommandKind = "moveCardPosition"
	KindSetCounters      CommandKind = "setCounters"
	KindFlipCard         CommandKind = "flipCard"
	KindSetLife          CommandKind = "setLife"
	KindSetPoison        CommandKind = "setPoison"
	KindShuffle          CommandKind = "shuffle"
	KindChat             CommandKind = "chat"
	KindDrawCard         CommandKind = "drawCard"
	KindSetLibrarySize   CommandKind = "setLibrarySize"
)

// Envelope is the inbound message shape: {kind, payload}
type Envelope struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Command is a decoded client command
type Command interface {
	Kind() CommandKind
}

// MoveCard relocates a card between two of the sender's zones
type MoveCard struct {
	CardID   string   `json:"cardId"`
	FromZone string   `json:"fromZone"`
	ToZone   string   `json:"toZone"`
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
}

// CardData carries the client-visible fields of a new card
type CardData struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ImageURL string  `json:"imageUrl"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// AddCard creates a card in one of the sender's zones
type AddCard struct {
	Zone     string   `json:"zone"`
	CardData CardData `json:"cardData"`
}

// TapCard sets or toggles tapped on a battlefield card
type TapCard struct {
	CardID string `json:"cardId"`
	Tapped *bool  `json:"tapped"`
}

// MoveCardPosition updates battlefield coordinates
type MoveCardPosition struct {
	CardID string   `json:"cardId"`
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
}

// SetCounters overwrites the counter value on a battlefield card
type SetCounters struct {
	CardID   string `json:"cardId"`
	Counters *int   `json:"counters"`
}

// FlipCard toggles flipped on a battlefield card
type FlipCard struct {
	CardID string `json:"cardId"`
}

// SetLife overwrites the sender's life total
type SetLife struct {
	Life *int `json:"life"`
}

// SetPoison overwrites the sender's poison counters
type SetPoison struct {
	Poison *int `json:"poison"`
}

// Shuffle announces a client-side library shuffle
type Shuffle struct{}

// Chat is a free-text message to the table
type Chat struct {
	Text string `json:"text"`
}

// DrawCard takes one card off the hidden library count
type DrawCard struct{}

// SetLibrarySize declares the size of the sender's hidden library
type SetLibrarySize struct {
	LibrarySize *int `json:"librarySize"`
}

func (MoveCard) Kind() CommandKind         { return KindMoveCard }
func (AddCard) Kind() CommandKind          { return KindAddCard }
func (TapCard) Kind() CommandKind          { return KindTapCard }
func (MoveCardPosition) Kind() CommandKind { return KindMoveCardPosition }
func (SetCounters) Kind() CommandKind      { return KindSetCounters }
func (FlipCard) Kind() CommandKind         { return KindFlipCard }
func (SetLife) Kind() CommandKind          { return KindSetLife }
func (SetPoison) Kind() CommandKind        { return KindSetPoison }
func (Shuffle) Kind() CommandKind          { return KindShuffle }
func (Chat) Kind() CommandKind             { return KindChat }
func (DrawCard) Kind() CommandKind         { return KindDrawCard }
func (SetLibrarySize) Kind() CommandKind   { return KindSetLibrarySize }

func newCommand(kind CommandKind) (Command, error) {
	switch kind {
	case KindMoveCard:
		return &MoveCard{}, nil
	case KindAddCard:
		return &AddCard{}, nil
	case KindTapCard:
		return &TapCard{}, nil
	case KindMoveCardPosition:
		return &MoveCardPosition{}, nil
	case KindSetCounters:
		return &SetCounters{}, nil
	case KindFlipCard:
		return &FlipCard{}, nil
	case KindSetLife:
		return &SetLife{}, nil
	case KindSetPoison:
		return &SetPoison{}, nil
	case KindShuffle:
		return &Shuffle{}, nil
	case KindChat:
		return &Chat{}, nil
	case KindDrawCard:
		return &DrawCard{}, nil
	case KindSetLibrarySize:
		return &SetLibrarySize{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, kind)
	}
}

// DecodeCommand turns an envelope into a typed command.
// Payload decoding is lenient: numeric strings are accepted for numbers and
// absent optional fields stay nil.
func DecodeCommand(env Envelope) (Command, error) {
	cmd, err := newCommand(CommandKind(env.Kind))
	if err != nil {
		return nil, err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           cmd,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := decoder.Decode(env.Payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Kind, err)
	}
	return cmd, nil
}
