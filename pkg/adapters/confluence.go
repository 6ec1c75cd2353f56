package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/vertaai/driftgate/pkg/fault"
)

// ConfluenceDocs talks to the Confluence Cloud REST API. The revision is
// the Confluence version number rendered as a string; WriteDoc submits
// expectedRevision+1 and lets the server reject stale updates.
type ConfluenceDocs struct {
	baseURL string
	email   string
	token   string
	client  *http.Client
}

// NewConfluenceDocs builds a doc adapter for one Confluence site.
// baseURL is the site root, e.g. "https://acme.atlassian.net/wiki".
func NewConfluenceDocs(baseURL, email, token string) *ConfluenceDocs {
	return &ConfluenceDocs{
		baseURL: baseURL,
		email:   email,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type confluencePage struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Version struct {
		Number int       `json:"number"`
		When   time.Time `json:"when"`
	} `json:"version"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
}

func (c *ConfluenceDocs) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "build confluence request")
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "confluence %s %s", method, url)
	}
	return resp, nil
}

func classifyStatus(resp *http.Response, docID string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fault.New(fault.KindNotFound, "confluence page %s not found", docID)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fault.New(fault.KindUnauthorized, "confluence rejected credentials for page %s", docID)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fault.New(fault.KindRateLimited, "confluence throttled page %s", docID)
	case resp.StatusCode == http.StatusConflict:
		return fault.New(fault.KindConflict, "confluence version conflict on page %s", docID)
	case resp.StatusCode >= 500:
		return fault.New(fault.KindTransport, "confluence returned %d for page %s", resp.StatusCode, docID)
	case resp.StatusCode >= 400:
		return fault.New(fault.KindValidation, "confluence returned %d for page %s", resp.StatusCode, docID)
	}
	return nil
}

// ReadDoc fetches the page body and current version.
func (c *ConfluenceDocs) ReadDoc(ctx context.Context, system, docID string) (*Doc, error) {
	url := fmt.Sprintf("%s/rest/api/content/%s?expand=body.storage,version", c.baseURL, docID)
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp, docID); err != nil {
		return nil, err
	}

	var page confluencePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "decode confluence page %s", docID)
	}

	return &Doc{
		DocID:   docID,
		System:  system,
		Title:   page.Title,
		Content: page.Body.Storage.Value,
		Revision: DocRevision{
			Revision:  strconv.Itoa(page.Version.Number),
			UpdatedAt: page.Version.When,
		},
	}, nil
}

// WriteDoc updates the page iff the live version still equals
// expectedRevision. The version check runs client side first so a stale
// proposal fails fast with the live revision in the error.
func (c *ConfluenceDocs) WriteDoc(ctx context.Context, system, docID, newContent, expectedRevision string) (*DocRevision, error) {
	current, err := c.ReadDoc(ctx, system, docID)
	if err != nil {
		return nil, err
	}
	if current.Revision.Revision != expectedRevision {
		return nil, fault.New(fault.KindConflict,
			"confluence page %s at version %s, expected %s", docID, current.Revision.Revision, expectedRevision)
	}

	expected, err := strconv.Atoi(expectedRevision)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "revision %q is not a confluence version", expectedRevision)
	}

	payload, err := json.Marshal(map[string]any{
		"id":      docID,
		"type":    "page",
		"title":   currentTitle(current, docID),
		"version": map[string]any{"number": expected + 1},
		"body": map[string]any{
			"storage": map[string]any{
				"value":          newContent,
				"representation": "storage",
			},
		},
	})
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "encode confluence update")
	}

	url := fmt.Sprintf("%s/rest/api/content/%s", c.baseURL, docID)
	resp, err := c.do(ctx, http.MethodPut, url, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp, docID); err != nil {
		return nil, err
	}

	var page confluencePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "decode confluence update %s", docID)
	}
	return &DocRevision{
		Revision:  strconv.Itoa(page.Version.Number),
		UpdatedAt: page.Version.When,
	}, nil
}

// currentTitle keeps the existing page title on update; Confluence requires
// the field even when unchanged.
func currentTitle(d *Doc, docID string) string {
	if d.Title != "" {
		return d.Title
	}
	return docID
}
