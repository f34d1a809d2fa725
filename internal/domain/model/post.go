package model

import (
	"fmt"
	"strconv"
	"time"
)

// PostID is an X post id. Ids are decimal strings on the wire and compare numerically.
type PostID uint64

func ParsePostID(s string) (PostID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse post id %q: %w", s, err)
	}
	return PostID(v), nil
}

func (id PostID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Post is a single item fetched from an account timeline.
type Post struct {
	ID        PostID
	Text      string
	CreatedAt time.Time
	IsReply   bool
	Author    EntityKey
}

func (p Post) URL() string {
	return fmt.Sprintf("%s%s/status/%s", profileBaseURL, p.Author.Username, p.ID)
}

// MaxPostID returns the largest id in posts, or 0 for an empty slice.
func MaxPostID(posts []Post) PostID {
	var top PostID
	for _, p := range posts {
		if p.ID > top {
			top = p.ID
		}
	}
	return top
}

// PostsAfter keeps the posts with an id above since, preserving order.
func PostsAfter(posts []Post, since PostID) []Post {
	out := posts[:0:0]
	for _, p := range posts {
		if p.ID > since {
			out = append(out, p)
		}
	}
	return out
}
