package fetch

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"memestash/internal/database"
)

// Result holds the results of a text backfill run.
type Result struct {
	Fetched int
	Failed  int
}

// TextFetcher backfills post text via HTTP + readability extraction.
type TextFetcher struct {
	db     *database.DB
	client *http.Client
}

// NewTextFetcher creates a new text fetcher.
func NewTextFetcher(db *database.DB, timeout time.Duration) *TextFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &TextFetcher{
		db: db,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// FetchMissingText fetches source pages for posts that were collected without
// text. Each post gets one attempt; once a domain fails, remaining posts from
// it are marked attempted without another request.
func (f *TextFetcher) FetchMissingText() *Result {
	posts, err := f.db.GetPostsNeedingText()
	if err != nil {
		log.Printf("Error getting posts needing text: %v", err)
		return &Result{}
	}

	if len(posts) == 0 {
		log.Println("No posts need text fetching")
		return &Result{}
	}

	result := &Result{}
	failedDomains := make(map[string]struct{})

	for _, post := range posts {
		u, _ := url.Parse(post.URL)
		domain := ""
		if u != nil {
			domain = strings.ToLower(u.Host)
		}

		if _, failed := failedDomains[domain]; failed {
			f.db.MarkTextFetchAttempted(post.ID)
			result.Failed++
			continue
		}

		text, httpErr := f.fetchPostText(post.URL)
		if httpErr != nil {
			f.db.MarkTextFetchAttempted(post.ID)
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			log.Printf("HTTP error for %s — skipping remaining from %s", post.URL, domain)
			continue
		}

		if text != "" {
			f.db.UpdatePostText(post.ID, text)
			result.Fetched++
			log.Printf("Fetched text for: %s", post.URL)
		} else {
			f.db.MarkTextFetchAttempted(post.ID)
			result.Failed++
			log.Printf("No extractable text from: %s", post.URL)
		}
	}

	log.Printf("Text fetch complete: %d fetched, %d failed", result.Fetched, result.Failed)
	return result
}

func (f *TextFetcher) fetchPostText(postURL string) (string, error) {
	req, err := http.NewRequest("GET", postURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "memestash/1.0 (meme collector)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(postURL)
	page, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(page.TextContent)
	if len(text) > 40 {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
