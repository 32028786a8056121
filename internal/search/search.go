// Package search talks to the full-text index service that holds resume and project pages.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const (
	contentType       = "application/json"
	defaultAPIVersion = "2023-11-01"
	defaultTop        = 1000

	projectFields = "id, project_number, document_updated, content, sourcefile, sourcepage"
	resumeFields  = "id, employee_id, content, sourcefile, sourcepage"
)

type Config struct {
	Endpoint      string `mapstructure:"endpoint"`
	APIVersion    string `mapstructure:"api-version"`
	ResumesIndex  string `mapstructure:"resumes-index"`
	ProjectsIndex string `mapstructure:"projects-index"`
	// UpdateIndex pushes the reconciled resume text back into the resumes index.
	UpdateIndex bool `mapstructure:"update-index"`
}

type Client struct {
	cfg    Config
	apiKey string
	logger *zap.Logger

	HTTPClient *http.Client
}

// Page is one chunk of an indexed document.
type Page struct {
	ID              string `mapstructure:"id"`
	EmployeeID      string `mapstructure:"employee_id"`
	ProjectNumber   string `mapstructure:"project_number"`
	DocumentUpdated string `mapstructure:"document_updated"`
	Content         string `mapstructure:"content"`
	SourceFile      string `mapstructure:"sourcefile"`
	SourcePage      int    `mapstructure:"sourcepage"`
}

// Resume is the employee resume as the index knows it.
type Resume struct {
	EmployeeID string
	SourceFile string
	Pages      []Page
}

// Text joins the pages in page order.
func (r *Resume) Text() string {
	if r == nil {
		return ""
	}
	return JoinContent(r.Pages, "\n")
}

type query struct {
	Search       string `json:"search"`
	Filter       string `json:"filter,omitempty"`
	Select       string `json:"select,omitempty"`
	OrderBy      string `json:"orderby,omitempty"`
	SearchFields string `json:"searchFields,omitempty"`
	Top          int    `json:"top,omitempty"`
}

type response struct {
	Value []map[string]any `json:"value"`
}

func New(cfg Config, apiKey string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}

	return &Client{
		cfg:    cfg,
		apiKey: apiKey,
		logger: logger,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ProjectPages returns every indexed page of a project ordered by page number. Project
// descriptions are chunked, so the order matters when the pages are stitched together.
func (c *Client) ProjectPages(ctx context.Context, projectNumber string) ([]Page, error) {
	q := query{
		Search:  "*",
		Filter:  fmt.Sprintf("project_number eq '%s'", escape(projectNumber)),
		Select:  projectFields,
		OrderBy: "sourcepage asc",
		Top:     defaultTop,
	}

	pages, err := c.search(ctx, c.cfg.ProjectsIndex, q)
	if err != nil {
		return nil, fmt.Errorf("search project %s: %w", projectNumber, err)
	}

	sortPages(pages)
	c.logger.Debug("fetched project pages", zap.String("project_number", projectNumber), zap.Int("pages", len(pages)))

	return pages, nil
}

// Resume returns the resume of an employee. An empty result is not an error: the
// returned resume has no pages and no source file.
func (c *Client) Resume(ctx context.Context, employeeID string) (*Resume, error) {
	q := query{
		Search:       employeeID,
		SearchFields: "employee_id,sourcefile",
		Select:       resumeFields,
		Top:          defaultTop,
	}

	pages, err := c.search(ctx, c.cfg.ResumesIndex, q)
	if err != nil {
		return nil, fmt.Errorf("search resume of %s: %w", employeeID, err)
	}

	resume := &Resume{EmployeeID: employeeID}
	for _, p := range pages {
		if p.EmployeeID != "" && p.EmployeeID != employeeID {
			continue
		}
		if resume.SourceFile == "" {
			resume.SourceFile = p.SourceFile
		}
		if p.SourceFile != resume.SourceFile {
			continue
		}
		resume.Pages = append(resume.Pages, p)
	}
	sortPages(resume.Pages)

	if len(resume.Pages) == 0 {
		c.logger.Warn("no resume found in the index", zap.String("employee_id", employeeID))
	}

	return resume, nil
}

// IndexResume merges the updated resume text into the resumes index as a single page.
// It is a no-op unless update-index is enabled.
func (c *Client) IndexResume(ctx context.Context, employeeID, filename, text string) error {
	if !c.cfg.UpdateIndex {
		return nil
	}

	doc := map[string]any{
		"@search.action": "mergeOrUpload",
		"id":             documentKey(filename),
		"employee_id":    employeeID,
		"content":        text,
		"sourcefile":     filename,
		"sourcepage":     1,
	}
	body, err := json.Marshal(map[string]any{"value": []any{doc}})
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, c.cfg.ResumesIndex, "index", body)
	if err != nil {
		return fmt.Errorf("index resume of %s: %w", employeeID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("index resume of %s: bad status: %s", employeeID, resp.Status)
	}
	return nil
}

// JoinContent concatenates page contents in the given order.
func JoinContent(pages []Page, sep string) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Content)
	}
	return strings.Join(parts, sep)
}

func (c *Client) search(ctx context.Context, index string, q query) ([]Page, error) {
	if index == "" {
		return nil, errors.New("index name is empty")
	}

	body, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, index, "search", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}

	return decodePages(r.Value)
}

func (c *Client) post(ctx context.Context, index, action string, body []byte) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/indexes/%s/docs/%s", strings.TrimRight(c.cfg.Endpoint, "/"), url.PathEscape(index), action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	q.Set("api-version", c.cfg.APIVersion)
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("api-key", c.apiKey)

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	return c.HTTPClient.Do(req)
}

func decodePages(items []map[string]any) ([]Page, error) {
	pages := make([]Page, 0, len(items))
	for _, item := range items {
		var p Page
		cfg := &mapstructure.DecoderConfig{
			Result:           &p,
			WeaklyTypedInput: true,
		}
		decoder, err := mapstructure.NewDecoder(cfg)
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(item); err != nil {
			return nil, fmt.Errorf("decode search result: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func sortPages(pages []Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].SourcePage < pages[j].SourcePage
	})
}

// escape doubles single quotes for OData string literals.
func escape(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// documentKey keeps only the characters the index accepts in a key.
func documentKey(filename string) string {
	var b strings.Builder
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '=':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
