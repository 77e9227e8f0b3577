package stream

import (
	"encoding/json"
	"fmt"

	"github.com/nestmatch/engine/internal/db"
)

// Tables carried on the change-data stream. One Redis channel per table.
const (
	TableLikes    = "likes"
	TableMatches  = "matches"
	TableMessages = "messages"
)

// ChannelFor returns the Redis pub/sub channel for a table's change feed.
func ChannelFor(table string) string { return "changes:" + table }

// Channels lists every change-feed channel, in subscription order.
func Channels() []string {
	return []string{
		ChannelFor(TableLikes),
		ChannelFor(TableMatches),
		ChannelFor(TableMessages),
	}
}

// EventType distinguishes row inserts from updates on the wire.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// Kind classifies a decoded event for dedup keys and notifications.
type Kind string

const (
	KindLike    Kind = "like"
	KindMatch   Kind = "match"
	KindMessage Kind = "message"
)

// ChangeEvent is the closed set of decoded change-stream events.
// Payloads are validated at the subscription boundary; consumers never
// see raw rows.
type ChangeEvent interface {
	Kind() Kind
	// RecordKey identifies the underlying record for deduplication.
	// The transport is at-least-once, so the same record may be seen twice.
	RecordKey() string
}

// LikeInserted is emitted when a swipe decision row lands.
type LikeInserted struct {
	Like db.Like
}

func (LikeInserted) Kind() Kind { return KindLike }

func (e LikeInserted) RecordKey() string {
	return fmt.Sprintf("%d:%d", e.Like.FromUser, e.Like.ToTarget)
}

// MatchUpdated is emitted when a match row changes. The mutual transition
// is detectable by comparing Old and New.
type MatchUpdated struct {
	Old db.Match
	New db.Match
}

func (MatchUpdated) Kind() Kind { return KindMatch }

func (e MatchUpdated) RecordKey() string { return fmt.Sprintf("%d", e.New.ID) }

// MessageInserted is emitted when a chat message row lands.
type MessageInserted struct {
	Message db.Message
}

func (MessageInserted) Kind() Kind { return KindMessage }

func (e MessageInserted) RecordKey() string { return fmt.Sprintf("%d", e.Message.ID) }

// envelope is the wire form published on the change channels.
type envelope struct {
	Table string          `json:"table"`
	Event EventType       `json:"event"`
	Old   json.RawMessage `json:"old,omitempty"`
	New   json.RawMessage `json:"new"`
}

// Encode serializes a ChangeEvent into its wire envelope and channel.
func Encode(ev ChangeEvent) (channel string, payload []byte, err error) {
	var env envelope

	switch e := ev.(type) {
	case LikeInserted:
		env.Table, env.Event = TableLikes, EventInsert
		env.New, err = json.Marshal(e.Like)

	case MatchUpdated:
		env.Table, env.Event = TableMatches, EventUpdate
		if env.Old, err = json.Marshal(e.Old); err == nil {
			env.New, err = json.Marshal(e.New)
		}

	case MessageInserted:
		env.Table, env.Event = TableMessages, EventInsert
		env.New, err = json.Marshal(e.Message)

	default:
		return "", nil, fmt.Errorf("unknown change event %T", ev)
	}
	if err != nil {
		return "", nil, fmt.Errorf("encode change event: %w", err)
	}

	payload, err = json.Marshal(env)
	if err != nil {
		return "", nil, fmt.Errorf("encode change envelope: %w", err)
	}
	return ChannelFor(env.Table), payload, nil
}

// Decode validates a raw payload into a typed ChangeEvent.
// Unknown tables or event types are rejected here so consumers only ever
// handle the closed variant set.
func Decode(payload []byte) (ChangeEvent, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode change envelope: %w", err)
	}

	switch {
	case env.Table == TableLikes && env.Event == EventInsert:
		var like db.Like
		if err := json.Unmarshal(env.New, &like); err != nil {
			return nil, fmt.Errorf("decode like row: %w", err)
		}
		return LikeInserted{Like: like}, nil

	case env.Table == TableMatches && env.Event == EventUpdate:
		var ev MatchUpdated
		if len(env.Old) > 0 {
			if err := json.Unmarshal(env.Old, &ev.Old); err != nil {
				return nil, fmt.Errorf("decode old match row: %w", err)
			}
		}
		if err := json.Unmarshal(env.New, &ev.New); err != nil {
			return nil, fmt.Errorf("decode match row: %w", err)
		}
		return ev, nil

	case env.Table == TableMessages && env.Event == EventInsert:
		var msg db.Message
		if err := json.Unmarshal(env.New, &msg); err != nil {
			return nil, fmt.Errorf("decode message row: %w", err)
		}
		return MessageInserted{Message: msg}, nil

	default:
		return nil, fmt.Errorf("unknown change event %s/%s", env.Table, env.Event)
	}
}
