package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cyderes/wod-ingestion-service/internal/logging"
	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// browserHeaders get past the blog's mod_security rules.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "application/json, text/html, */*",
	"Accept-Language": "en-US,en;q=0.9",
}

// wpPost is the subset of the WordPress REST post object we read
type wpPost struct {
	ID    int    `json:"id"`
	Slug  string `json:"slug"`
	Date  string `json:"date"`
	Title struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
	Content struct {
		Rendered string `json:"rendered"`
	} `json:"content"`
}

// WordPress returns site-local timestamps without a zone.
var wpDateLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func (p wpPost) toRawPost() (models.RawPost, error) {
	var (
		published time.Time
		err       error
	)
	for _, layout := range wpDateLayouts {
		if published, err = time.Parse(layout, p.Date); err == nil {
			break
		}
	}
	if err != nil {
		return models.RawPost{}, fmt.Errorf("post %d has invalid date %q: %w", p.ID, p.Date, err)
	}

	return models.RawPost{
		ID:          p.ID,
		Slug:        p.Slug,
		Title:       p.Title.Rendered,
		PublishedAt: published,
		HTMLBody:    p.Content.Rendered,
	}, nil
}

// fetchPosts fetches one page of posts from the API with retry logic
func (s *Service) fetchPosts(ctx context.Context, page int) ([]models.RawPost, error) {
	var lastErr error

	for attempt := 0; attempt < s.config.RetryCount; attempt++ {
		posts, err := s.fetchPostsOnce(ctx, page)
		if err == nil {
			return posts, nil
		}

		lastErr = err
		logging.Ctx(ctx).Warn().Err(err).Int("attempt", attempt+1).Msg("failed to fetch posts")
		if attempt < s.config.RetryCount-1 {
			// Wait before retrying (linear backoff)
			waitTime := time.Duration(attempt+1) * s.config.RetryBackoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", s.config.RetryCount, lastErr)
}

// fetchPostsOnce performs a single fetch attempt
func (s *Service) fetchPostsOnce(ctx context.Context, page int) ([]models.RawPost, error) {
	endpoint, err := s.postsURL(page)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	if s.config.Username != "" {
		req.SetBasicAuth(s.config.Username, s.config.Password)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var raw []wpPost
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	posts := make([]models.RawPost, 0, len(raw))
	for _, p := range raw {
		post, err := p.toRawPost()
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (s *Service) postsURL(page int) (string, error) {
	u, err := url.Parse(s.config.APIEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid API endpoint: %w", err)
	}

	q := u.Query()
	if s.config.CategoryID != "" {
		q.Set("categories", s.config.CategoryID)
	}
	perPage := s.config.PostsPerPage
	if perPage < 1 {
		perPage = 1
	}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
