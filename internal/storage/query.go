package storage

import (
	"fmt"
	"time"
)

// QueryKind selects how records are looked up
type QueryKind int

const (
	QueryByIdentity QueryKind = iota
	QueryByTimeRange
)

func (k QueryKind) String() string {
	switch k {
	case QueryByIdentity:
		return "identity"
	case QueryByTimeRange:
		return "range"
	default:
		return "unknown"
	}
}

// Query is a record search: either a user identity or a UTC time range,
// scoped to one collection
type Query struct {
	Kind       QueryKind `json:"kind"`
	UserID     int64     `json:"user_id,omitempty"`
	From       time.Time `json:"from,omitempty"`
	To         time.Time `json:"to,omitempty"`
	Collection string    `json:"collection,omitempty"`
}

// IdentityQuery builds a query by user identity
func IdentityQuery(userID int64) Query {
	return Query{Kind: QueryByIdentity, UserID: userID}
}

// RangeQuery builds a query by time range
func RangeQuery(from, to time.Time) Query {
	return Query{Kind: QueryByTimeRange, From: from.UTC(), To: to.UTC()}
}

func (q Query) String() string {
	if q.Kind == QueryByIdentity {
		return fmt.Sprintf("user_id=%d collection=%s", q.UserID, q.Collection)
	}
	return fmt.Sprintf("from=%s to=%s collection=%s", FormatTimestamp(q.From), FormatTimestamp(q.To), q.Collection)
}
