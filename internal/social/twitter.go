package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/models"
)

const (
	minPageSize = 5
	maxPageSize = 100
)

// TwitterClient speaks the v2 REST API with an OAuth2 user-context token.
type TwitterClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger

	mu sync.Mutex
	me string
}

func NewTwitterClient(baseURL, userToken string, log *zap.Logger) *TwitterClient {
	return &TwitterClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   userToken,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		log: log,
	}
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type tweet struct {
	ID               string    `json:"id"`
	Text             string    `json:"text"`
	AuthorID         string    `json:"author_id"`
	ConversationID   string    `json:"conversation_id"`
	CreatedAt        time.Time `json:"created_at"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
	Attachments *struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
}

type media struct {
	MediaKey string `json:"media_key"`
	URL      string `json:"url"`
}

type mentionsResponse struct {
	Data     []tweet `json:"data"`
	Includes struct {
		Media []media `json:"media"`
	} `json:"includes"`
	Meta struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
	Errors []apiError `json:"errors"`
}

// Me returns the authenticated user id, cached after the first call.
func (c *TwitterClient) Me(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.me
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/2/users/me", nil, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("twitter: empty user id")
	}

	c.mu.Lock()
	c.me = out.Data.ID
	c.mu.Unlock()
	return out.Data.ID, nil
}

func (c *TwitterClient) Post(ctx context.Context, text string) (string, error) {
	return c.createTweet(ctx, map[string]any{"text": text})
}

func (c *TwitterClient) Reply(ctx context.Context, messageID, text string) (string, error) {
	return c.createTweet(ctx, map[string]any{
		"text":  text,
		"reply": map[string]string{"in_reply_to_tweet_id": messageID},
	})
}

func (c *TwitterClient) createTweet(ctx context.Context, payload map[string]any) (string, error) {
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/2/tweets", payload, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("twitter: tweet created without id")
	}
	return out.Data.ID, nil
}

// Mentions fetches one page of mentions of q.UserID created after q.Since.
func (c *TwitterClient) Mentions(ctx context.Context, q MentionQuery) (MentionPage, error) {
	size := q.PageSize
	if size < minPageSize {
		size = minPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	v := url.Values{}
	v.Set("max_results", strconv.Itoa(size))
	v.Set("tweet.fields", "author_id,conversation_id,created_at,referenced_tweets,attachments")
	v.Set("expansions", "attachments.media_keys")
	v.Set("media.fields", "url")
	if !q.Since.IsZero() {
		v.Set("start_time", q.Since.UTC().Format(time.RFC3339))
	}
	if q.PaginationToken != "" {
		v.Set("pagination_token", q.PaginationToken)
	}

	var out mentionsResponse
	path := fmt.Sprintf("/2/users/%s/mentions?%s", url.PathEscape(q.UserID), v.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return MentionPage{}, err
	}
	if len(out.Data) == 0 && len(out.Errors) > 0 {
		return MentionPage{}, fmt.Errorf("twitter: %s: %s", out.Errors[0].Title, out.Errors[0].Detail)
	}

	mediaURL := make(map[string]string, len(out.Includes.Media))
	for _, m := range out.Includes.Media {
		mediaURL[m.MediaKey] = m.URL
	}

	page := MentionPage{NextToken: out.Meta.NextToken}
	for _, t := range out.Data {
		page.Mentions = append(page.Mentions, toCandidate(t, mediaURL))
	}
	// The API returns newest first; candidates are handled in arrival order.
	sort.SliceStable(page.Mentions, func(i, j int) bool {
		return page.Mentions[i].CreatedAt.Before(page.Mentions[j].CreatedAt)
	})
	return page, nil
}

func toCandidate(t tweet, mediaURL map[string]string) models.CandidateResponse {
	ref := t.ConversationID
	if ref == "" {
		for _, r := range t.ReferencedTweets {
			if r.Type == "replied_to" {
				ref = r.ID
				break
			}
		}
	}

	cr := models.CandidateResponse{
		ResponseID:           t.ID,
		AuthorID:             t.AuthorID,
		Text:                 t.Text,
		ReferencedCampaignID: ref,
		CreatedAt:            t.CreatedAt,
	}
	if t.Attachments != nil && len(t.Attachments.MediaKeys) > 0 {
		key := t.Attachments.MediaKeys[0]
		if u := mediaURL[key]; u != "" {
			key = u
		}
		cr.AttachedMediaRef = &key
	}
	return cr
}

func (c *TwitterClient) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twitter unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		c.log.Warn("twitter request failed", zap.String("path", strings.SplitN(path, "?", 2)[0]), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("twitter returned %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
