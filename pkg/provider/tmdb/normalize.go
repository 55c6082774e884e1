package tmdb

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/reelwatch/reelwatch/pkg/provider"
	"github.com/reelwatch/reelwatch/pkg/storage"
)

// Placeholders used when the provider omits a field.
const (
	NotAvailable     = "N/A"
	UntitledFallback = "Untitled"
	OverviewFallback = "No overview available."
	WhereToWatch     = "Check streaming platforms"
	topCastSize      = 3
)

// Normalize turns a listing entry plus its detail record into a Movie. It is
// the only place that reads provider JSON; every field degrades on its own
// when missing or malformed.
func Normalize(item provider.RawItem, detail provider.RawDetail, imageBaseURL string) storage.Movie {
	listing := gjson.Parse(item.JSON)
	d := gjson.Parse(detail.JSON)
	if imageBaseURL == "" {
		imageBaseURL = DefaultImageBaseURL
	}

	m := storage.Movie{
		ExternalID:   item.ID,
		Title:        firstNonEmpty(item.Title, listing.Get("title").String(), d.Get("title").String()),
		Year:         releaseYear(firstNonEmpty(item.ReleaseDate, listing.Get("release_date").String(), d.Get("release_date").String())),
		Actors:       topCast(d.Get("credits.cast")),
		Director:     firstNonEmpty(d.Get(`credits.crew.#(job=="Director").name`).String()),
		Overview:     firstNonEmpty(d.Get("overview").String(), listing.Get("overview").String()),
		PosterURL:    posterURL(imageBaseURL, firstNonEmpty(d.Get("poster_path").String(), listing.Get("poster_path").String())),
		Rating:       rating(d.Get("vote_average"), listing.Get("vote_average")),
		WhereToWatch: WhereToWatch,
	}
	if m.ExternalID == 0 {
		m.ExternalID = d.Get("id").Int()
	}
	if m.Title == "" {
		m.Title = UntitledFallback
	}
	if m.Director == "" {
		m.Director = NotAvailable
	}
	if m.Overview == "" {
		m.Overview = OverviewFallback
	}
	return m
}

func topCast(cast gjson.Result) string {
	names := make([]string, 0, topCastSize)
	for _, member := range cast.Array() {
		if len(names) == topCastSize {
			break
		}
		if name := strings.TrimSpace(member.Get("name").String()); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return NotAvailable
	}
	return strings.Join(names, ", ")
}

// releaseYear keeps the part before the first "-" of a YYYY-MM-DD date.
func releaseYear(date string) string {
	year := strings.TrimSpace(strings.SplitN(date, "-", 2)[0])
	if year == "" {
		return NotAvailable
	}
	return year
}

func posterURL(base, path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func rating(candidates ...gjson.Result) storage.Score {
	for _, c := range candidates {
		if c.Type == gjson.Number {
			return storage.NewScore(c.Float())
		}
	}
	return storage.Score{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
