// Package models provides data model definitions for the Soma offline core.
package models

import (
	"encoding/json"
	"time"
)

// Course is a locally cached snapshot of a remotely-sourced course record.
// The remote payload is stored verbatim in Data; Title is denormalized for
// list views so they render without decoding every snapshot.
type Course struct {
	ID       string          `db:"id" json:"id"`
	Title    string          `db:"title" json:"title"`
	Data     json.RawMessage `db:"data" json:"data"`
	CachedAt int64           `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for Course.
func (Course) TableName() string {
	return "courses"
}

// CachedAtTime returns CachedAt as time.Time.
func (c *Course) CachedAtTime() time.Time {
	return time.Unix(c.CachedAt, 0)
}
