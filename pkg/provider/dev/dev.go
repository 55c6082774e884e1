package dev

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/reelwatch/reelwatch/pkg/provider"
	"github.com/reelwatch/reelwatch/pkg/provider/tmdb"
	"github.com/reelwatch/reelwatch/pkg/storage"
)

// This is used for trying out the sync and announce flow without a TMDB key.

// Provider serves a fixed now-playing listing in TMDB's JSON shape. Every
// second call rotates one extra movie in, so consecutive syncs show both
// dedup and a new record.
type Provider struct {
	mu    sync.Mutex
	calls int
}

func New() *Provider { return &Provider{} }

var _ provider.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return "dev" }

var listing = []string{
	`{"id":1001,"title":"The Long Afternoon","release_date":"2024-05-02","poster_path":"/afternoon.jpg","vote_average":7.4}`,
	`{"id":1002,"title":"Paper Harbor","release_date":"2023-11-17","vote_average":6.1}`,
	`{"id":1003,"title":"Night_Shift *Redux*","release_date":""}`,
}

const rotating = `{"id":1004,"title":"Second Run","release_date":"2024-08-30","poster_path":"/second.jpg","vote_average":8}`

var details = map[int64]string{
	1001: `{"title":"The Long Afternoon","overview":"Two strangers share a delayed train.","credits":{"cast":[{"name":"Ada Reyes"},{"name":"Tom Ilves"}],"crew":[{"job":"Director","name":"Mira Holt"}]}}`,
	1002: `{"title":"Paper Harbor","overview":"","credits":{"cast":[],"crew":[{"job":"Writer","name":"Sam Doe"}]}}`,
	1003: `{}`,
	1004: `{"title":"Second Run","overview":"A sequel nobody asked for.","credits":{"cast":[{"name":"Lee Park"}],"crew":[{"job":"Director","name":"Jo Kim"}]}}`,
}

func (p *Provider) FetchCurrentBatch(ctx context.Context) ([]provider.RawItem, error) {
	p.mu.Lock()
	p.calls++
	withRotating := p.calls%2 == 0
	p.mu.Unlock()

	raw := append([]string(nil), listing...)
	if withRotating {
		raw = append(raw, rotating)
	}
	items := make([]provider.RawItem, 0, len(raw))
	for _, r := range raw {
		j := gjson.Parse(r)
		items = append(items, provider.RawItem{
			ID:          j.Get("id").Int(),
			Title:       j.Get("title").String(),
			ReleaseDate: j.Get("release_date").String(),
			JSON:        r,
		})
	}
	return items, nil
}

func (p *Provider) FetchDetails(ctx context.Context, id int64) (provider.RawDetail, error) {
	d, ok := details[id]
	if !ok {
		return provider.RawDetail{}, fmt.Errorf("%w: dev has no movie %d", provider.ErrNotFound, id)
	}
	return provider.RawDetail{JSON: d}, nil
}

func (p *Provider) SearchByTitle(ctx context.Context, title string) (provider.SearchResult, error) {
	for _, r := range append(listing, rotating) {
		j := gjson.Parse(r)
		if strings.EqualFold(j.Get("title").String(), title) {
			id := j.Get("id").Int()
			return provider.SearchResult{
				ID:       id,
				Title:    j.Get("title").String(),
				Overview: gjson.Get(details[id], "overview").String(),
			}, nil
		}
	}
	return provider.SearchResult{}, fmt.Errorf("%w: %q", provider.ErrNotFound, title)
}

func (p *Provider) Normalize(item provider.RawItem, detail provider.RawDetail) storage.Movie {
	return tmdb.Normalize(item, detail, "")
}
