package suno

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// PageSize is the number of clips the feed returns per page.
const PageSize = 20

// HasMore guesses whether another page exists. The feed has no total
// count, so a full page is taken as a hint that more may follow.
func HasMore(n int) bool {
	return n >= PageSize
}

// FetchTracks returns the playable tracks of a zero based feed page.
func (c *Client) FetchTracks(ctx context.Context, likedOnly bool, page int) ([]Track, error) {
	if page < 0 {
		page = 0
	}
	path := fmt.Sprintf("feed/v2?hide_disliked=true&hide_gen_stems=true&hide_studio_clips=true&page=%d", page)
	if likedOnly {
		path += "&is_liked=true"
	}
	r := c.Do(ctx, "GET", path, nil)
	if !r.OK {
		return nil, fmt.Errorf("suno: couldn't get feed page %d: %w", page, r.Err)
	}
	tracks := Normalize(r.Data)
	c.log("suno: feed page %d returned %d playable tracks", page, len(tracks))
	return tracks, nil
}

// Normalize converts a raw feed response into playable tracks, keeping the
// original order. Entries that aren't complete or have no audio are
// dropped.
func Normalize(data []byte) []Track {
	root := gjson.ParseBytes(data)
	list := root
	if !list.IsArray() {
		list = root.Get("clips")
		if !list.IsArray() {
			list = root.Get("items")
		}
	}
	tracks := []Track{}
	list.ForEach(func(_, v gjson.Result) bool {
		t := toTrack(v)
		if t.Status == "complete" && t.Audio != "" {
			tracks = append(tracks, t)
		}
		return true
	})
	return tracks
}

func toTrack(v gjson.Result) Track {
	t := Track{
		ID:        v.Get("id").String(),
		Title:     first(v, "title", "metadata.prompt").String(),
		Artist:    first(v, "display_name", "handle").String(),
		Cover:     toHTTPS(first(v, "image_url", "image_large_url").String()),
		Audio:     toHTTPS(first(v, "audio_url", "song_path").String()),
		Duration:  first(v, "metadata.duration", "duration").Float(),
		Liked:     v.Get("is_liked").Type == gjson.True,
		PlayCount: int(v.Get("play_count").Int()),
		Status:    v.Get("status").String(),
		Tags:      v.Get("metadata.tags").String(),
	}
	if t.Title == "" {
		t.Title = "Untitled"
	}
	if t.Artist == "" {
		t.Artist = "Suno AI"
	}
	if created := v.Get("created_at").String(); created != "" {
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			t.CreatedAt = ts
		}
	}
	return t
}

// first returns the first path with a non empty value.
func first(v gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		r := v.Get(p)
		if r.Exists() && r.Type != gjson.Null && r.String() != "" {
			return r
		}
	}
	return gjson.Result{}
}

func toHTTPS(u string) string {
	if strings.HasPrefix(u, "http:") {
		return "https:" + strings.TrimPrefix(u, "http:")
	}
	return u
}
