package firehose

import (
	"encoding/json"
	"fmt"
	"time"
)

// jetstreamEvent is the raw JSON structure from Jetstream.
type jetstreamEvent struct {
	DID    string           `json:"did"`
	TimeUS int64            `json:"time_us"`
	Kind   string           `json:"kind"`
	Commit *jetstreamCommit `json:"commit,omitempty"`
}

// jetstreamCommit is the raw commit data from Jetstream.
type jetstreamCommit struct {
	Rev        string      `json:"rev"`
	Operation  string      `json:"operation"`
	Collection string      `json:"collection"`
	RKey       string      `json:"rkey"`
	Record     *postRecord `json:"record,omitempty"`
	CID        string      `json:"cid"`
}

// postRecord is the part of an app.bsky.feed.post record the watcher reads.
type postRecord struct {
	Text      string          `json:"text"`
	CreatedAt string          `json:"createdAt"`
	Reply     json.RawMessage `json:"reply,omitempty"`
}

// isTopLevel reports whether the post starts a thread.
func (r *postRecord) isTopLevel() bool {
	return len(r.Reply) == 0 || string(r.Reply) == "null"
}

// Post is a new top-level post by a watched account.
type Post struct {
	DID       string
	URI       string
	CID       string
	Text      string
	CreatedAt time.Time
}

func parseEvent(data []byte) (*jetstreamEvent, error) {
	var raw struct {
		DID    string          `json:"did"`
		TimeUS int64           `json:"time_us"`
		Kind   string          `json:"kind"`
		Commit json.RawMessage `json:"commit,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	event := &jetstreamEvent{DID: raw.DID, TimeUS: raw.TimeUS, Kind: raw.Kind}
	if raw.Kind != "commit" || len(raw.Commit) == 0 {
		return event, nil
	}

	var rc struct {
		Rev        string          `json:"rev"`
		Operation  string          `json:"operation"`
		Collection string          `json:"collection"`
		RKey       string          `json:"rkey"`
		Record     json.RawMessage `json:"record,omitempty"`
		CID        string          `json:"cid"`
	}
	if err := json.Unmarshal(raw.Commit, &rc); err != nil {
		return nil, fmt.Errorf("unmarshal commit: %w", err)
	}
	commit := &jetstreamCommit{
		Rev:        rc.Rev,
		Operation:  rc.Operation,
		Collection: rc.Collection,
		RKey:       rc.RKey,
		CID:        rc.CID,
	}
	if len(rc.Record) > 0 && rc.Collection == postCollection {
		var record postRecord
		if err := json.Unmarshal(rc.Record, &record); err != nil {
			return nil, fmt.Errorf("unmarshal post record: %w", err)
		}
		commit.Record = &record
	}
	event.Commit = commit
	return event, nil
}

// toPost converts a create commit to a Post. The record's own timestamp is
// preferred; the event time is used when it is missing or malformed.
func (e *jetstreamEvent) toPost() Post {
	c := e.Commit
	created, err := time.Parse(time.RFC3339, c.Record.CreatedAt)
	if err != nil {
		created = time.UnixMicro(e.TimeUS).UTC()
	}
	return Post{
		DID:       e.DID,
		URI:       fmt.Sprintf("at://%s/%s/%s", e.DID, c.Collection, c.RKey),
		CID:       c.CID,
		Text:      c.Record.Text,
		CreatedAt: created,
	}
}
