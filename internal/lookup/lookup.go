// Package lookup resolves free-text queries and YouTube links to candidate
// video descriptors. Search goes through the configured Piped instances in
// order; metadata for a direct link comes from noembed, degrading to a
// placeholder title when the lookup fails.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sryo/nombre-pendiente/internal/domain"
)

const maxResults = 6

var idPattern = regexp.MustCompile(
	`(?:youtube\.com/watch\?.*v=|youtu\.be/|youtube\.com/embed/|youtube\.com/v/|youtube\.com/shorts/)([a-zA-Z0-9_-]{11})`)

var bareID = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// ExtractVideoID pulls the 11-character video id out of a YouTube URL, or
// accepts a bare id. Empty return means the input is a search query.
func ExtractVideoID(input string) string {
	if m := idPattern.FindStringSubmatch(input); m != nil {
		return m[1]
	}
	trimmed := strings.TrimSpace(input)
	if bareID.MatchString(trimmed) {
		return trimmed
	}
	return ""
}

func thumbnailURL(videoID string) string {
	return fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", videoID)
}

type Client struct {
	http       *http.Client
	instances  []string
	noembedURL string
}

func NewClient(instances []string, noembedURL string) *Client {
	return &Client{
		http:       &http.Client{Timeout: 10 * time.Second},
		instances:  instances,
		noembedURL: noembedURL,
	}
}

// Resolve turns user input into candidate videos: a recognized link yields
// exactly one candidate with fetched metadata, anything else is searched.
func (c *Client) Resolve(ctx context.Context, input string) ([]domain.Video, error) {
	if id := ExtractVideoID(input); id != "" {
		return []domain.Video{c.FetchInfo(ctx, id)}, nil
	}
	return c.Search(ctx, input)
}

type searchItem struct {
	URL          string `json:"url"`
	VideoID      string `json:"videoId"`
	Title        string `json:"title"`
	UploaderName string `json:"uploaderName"`
	Author       string `json:"author"`
}

// Search tries each Piped instance until one answers; an instance failure
// falls through to the next, and exhausting them all is an error.
func (c *Client) Search(ctx context.Context, query string) ([]domain.Video, error) {
	for _, instance := range c.instances {
		u := fmt.Sprintf("%s/search?q=%s&filter=videos", instance, url.QueryEscape(query))
		items, err := c.fetchSearch(ctx, u)
		if err != nil {
			log.Warn().Err(err).Str("module", "lookup").Str("instance", instance).Msg("search instance failed")
			continue
		}

		out := make([]domain.Video, 0, maxResults)
		for _, item := range items {
			id := item.VideoID
			if id == "" {
				id = strings.TrimPrefix(item.URL, "/watch?v=")
			}
			if id == "" {
				continue
			}
			author := item.UploaderName
			if author == "" {
				author = item.Author
			}
			out = append(out, domain.Video{
				ID:        id,
				Title:     item.Title,
				Thumbnail: thumbnailURL(id),
				Author:    author,
			})
			if len(out) == maxResults {
				break
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("search %q: all instances failed", query)
}

func (c *Client) fetchSearch(ctx context.Context, u string) ([]searchItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	// Piped answers either {items: [...]} or a bare array.
	var wrapped struct {
		Items []searchItem `json:"items"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Items != nil {
		return wrapped.Items, nil
	}
	var plain []searchItem
	if err := json.Unmarshal(body, &plain); err != nil {
		return nil, err
	}
	return plain, nil
}

// FetchInfo looks up metadata for a known video id. Failure degrades
// gracefully to a placeholder descriptor instead of propagating an error:
// a dead metadata service must not block adding a video.
func (c *Client) FetchInfo(ctx context.Context, videoID string) domain.Video {
	fallback := domain.Video{
		ID:        videoID,
		Title:     "Video " + videoID,
		Thumbnail: thumbnailURL(videoID),
	}

	watch := "https://www.youtube.com/watch?v=" + videoID
	u := fmt.Sprintf("%s?url=%s", c.noembedURL, url.QueryEscape(watch))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fallback
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("module", "lookup").Str("video", videoID).Msg("metadata lookup failed")
		return fallback
	}
	defer resp.Body.Close()

	var info struct {
		Title      string `json:"title"`
		AuthorName string `json:"author_name"`
		Error      string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil || info.Error != "" || info.Title == "" {
		return fallback
	}
	return domain.Video{
		ID:        videoID,
		Title:     info.Title,
		Thumbnail: thumbnailURL(videoID),
		Author:    info.AuthorName,
	}
}
