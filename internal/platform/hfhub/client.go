package hfhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tz1211/datadetox/internal/domain/lineage"
	"github.com/tz1211/datadetox/internal/platform/ctxutil"
	"github.com/tz1211/datadetox/internal/platform/envutil"
	"github.com/tz1211/datadetox/internal/platform/logger"
)

const (
	defaultBaseURL    = "https://huggingface.co"
	maxErrorBodyBytes = 1024
	// maxPageBytes bounds raw card and dataset-page downloads; the hub
	// serves some README files in the megabytes.
	maxPageBytes = 8 << 20
)

type Config struct {
	BaseURL        string
	Token          string
	TimeoutSeconds int
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:        strings.TrimSpace(os.Getenv("HF_API_BASE")),
		Token:          strings.TrimSpace(os.Getenv("HF_TOKEN")),
		TimeoutSeconds: envutil.Int("HF_TIMEOUT_SECONDS", 10),
	}
}

// Client talks to the model registry's public REST surface. All calls are
// GETs; an empty token is fine for public entities.
type Client struct {
	log     *logger.Logger
	baseURL string
	token   string
	http    *http.Client
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("hfhub: logger required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}
	c := &Client{
		log:     log.With("client", "HFHub"),
		baseURL: base,
		token:   cfg.Token,
		http: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
	return c, nil
}

func NewFromEnv(log *logger.Logger) (*Client, error) {
	return New(log, ConfigFromEnv())
}

// BaseURL exposes the resolved registry host so callers can build public
// entity URLs alongside API calls.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// modelRecord is the wire shape of /api/models entries. The list endpoint
// historically reported the id under modelId; both spellings appear in the
// wild, so decode accepts either.
type modelRecord struct {
	ID           string          `json:"id"`
	ModelID      string          `json:"modelId"`
	Author       string          `json:"author"`
	SHA          string          `json:"sha"`
	Downloads    int64           `json:"downloads"`
	Likes        int64           `json:"likes"`
	Tags         []string        `json:"tags"`
	LibraryName  string          `json:"library_name"`
	PipelineTag  string          `json:"pipeline_tag"`
	Private      bool            `json:"private"`
	CreatedAt    string          `json:"createdAt"`
	LastModified string          `json:"lastModified"`
	CardData     json.RawMessage `json:"cardData"`
}

type datasetRecord struct {
	ID        string   `json:"id"`
	Author    string   `json:"author"`
	Downloads int64    `json:"downloads"`
	Tags      []string `json:"tags"`
}

func (c *Client) modelNode(rec modelRecord) lineage.ModelNode {
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = strings.TrimSpace(rec.ModelID)
	}
	author := strings.TrimSpace(rec.Author)
	if author == "" {
		author = lineage.AuthorFromID(id)
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return lineage.ModelNode{
		ID:          id,
		Author:      author,
		SHA:         rec.SHA,
		Downloads:   rec.Downloads,
		Likes:       rec.Likes,
		Tags:        tags,
		Library:     rec.LibraryName,
		PipelineTag: rec.PipelineTag,
		Private:     rec.Private,
		URL:         c.baseURL + "/" + id,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.LastModified,
	}
}

func (c *Client) datasetNode(rec datasetRecord) lineage.DatasetNode {
	id := strings.TrimSpace(rec.ID)
	author := strings.TrimSpace(rec.Author)
	if author == "" {
		author = lineage.AuthorFromID(id)
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return lineage.DatasetNode{
		ID:        id,
		Author:    author,
		Downloads: rec.Downloads,
		Tags:      tags,
	}
}

// ModelListing couples a listed model with whatever card metadata the
// listing response already carried; a nil Card means the caller must fetch
// the raw card itself.
type ModelListing struct {
	Node lineage.ModelNode
	Card *CardMetadata
}

// ListModels fetches up to limit models ordered most-downloaded first,
// following the listing's rel="next" links until limit is met or the
// listing is exhausted.
func (c *Client) ListModels(ctx context.Context, limit int) ([]ModelListing, error) {
	const op = "list_models"
	if limit <= 0 {
		return nil, opErr(op, OperationErrorValidation, "limit must be positive", nil)
	}
	q := url.Values{}
	q.Set("sort", "downloads")
	q.Set("direction", "-1")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("full", "true")
	q.Set("cardData", "true")

	path := "/api/models?" + q.Encode()
	out := make([]ModelListing, 0, limit)
	for path != "" && len(out) < limit {
		var recs []modelRecord
		next, err := c.doJSONPage(ctx, op, path, &recs)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			node := c.modelNode(rec)
			if node.ID == "" {
				continue
			}
			out = append(out, ModelListing{
				Node: node,
				Card: CardMetadataFromJSON(rec.CardData),
			})
			if len(out) == limit {
				return out, nil
			}
		}
		if len(recs) == 0 {
			break
		}
		path = next
	}
	return out, nil
}

func (c *Client) GetModel(ctx context.Context, modelID string) (*lineage.ModelNode, error) {
	const op = "get_model"
	id := strings.TrimSpace(modelID)
	if id == "" {
		return nil, opErr(op, OperationErrorValidation, "model id required", nil)
	}
	var rec modelRecord
	if err := c.doJSON(ctx, op, "/api/models/"+escapeID(id), &rec); err != nil {
		return nil, err
	}
	node := c.modelNode(rec)
	if node.ID == "" {
		node.ID = id
	}
	return &node, nil
}

func (c *Client) GetDataset(ctx context.Context, datasetID string) (*lineage.DatasetNode, error) {
	const op = "get_dataset"
	id := strings.TrimSpace(datasetID)
	if id == "" {
		return nil, opErr(op, OperationErrorValidation, "dataset id required", nil)
	}
	var rec datasetRecord
	if err := c.doJSON(ctx, op, "/api/datasets/"+escapeID(id), &rec); err != nil {
		return nil, err
	}
	node := c.datasetNode(rec)
	if node.ID == "" {
		node.ID = id
	}
	return &node, nil
}

// Siblings is the registry's derivative classification of a model: category
// name to derived model ids. Categories with no entries are simply absent.
type Siblings map[string][]string

// SiblingCategories is the order categories are consulted in when locating
// a model.
var SiblingCategories = []string{"finetuned", "adapters", "merges", "quantizations"}

// Category returns the first category containing modelID.
func (s Siblings) Category(modelID string) (string, bool) {
	for _, cat := range SiblingCategories {
		for _, id := range s[cat] {
			if id == modelID {
				return cat, true
			}
		}
	}
	return "", false
}

// GetModelSiblings fetches the derivative listing for a model. Entries may
// be bare id strings or {"id": ...} objects; both decode. A missing listing
// is an empty Siblings, not an error.
func (c *Client) GetModelSiblings(ctx context.Context, modelID string) (Siblings, error) {
	const op = "get_siblings"
	id := strings.TrimSpace(modelID)
	if id == "" {
		return nil, opErr(op, OperationErrorValidation, "model id required", nil)
	}

	var raw map[string]json.RawMessage
	if err := c.doJSON(ctx, op, "/api/models/"+escapeID(id)+"/siblings", &raw); err != nil {
		if IsNotFound(err) {
			return Siblings{}, nil
		}
		return nil, err
	}

	out := Siblings{}
	for _, cat := range SiblingCategories {
		entries, ok := raw[cat]
		if !ok {
			continue
		}
		ids := decodeSiblingEntries(entries)
		if len(ids) > 0 {
			out[cat] = ids
		}
	}
	return out, nil
}

func decodeSiblingEntries(raw json.RawMessage) []string {
	var objs []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &objs); err == nil {
		ids := make([]string, 0, len(objs))
		for _, o := range objs {
			if o.ID != "" {
				ids = append(ids, o.ID)
			}
		}
		if len(ids) > 0 {
			return ids
		}
	}
	var strs []string
	if err := json.Unmarshal(raw, &strs); err == nil {
		ids := make([]string, 0, len(strs))
		for _, s := range strs {
			if s != "" {
				ids = append(ids, s)
			}
		}
		return ids
	}
	return nil
}

// GetModelCard fetches the raw model card and parses its front matter.
func (c *Client) GetModelCard(ctx context.Context, modelID string) (CardMetadata, error) {
	const op = "get_card"
	id := strings.TrimSpace(modelID)
	if id == "" {
		return CardMetadata{}, opErr(op, OperationErrorValidation, "model id required", nil)
	}
	raw, err := c.doText(ctx, op, "/"+escapeID(id)+"/raw/main/README.md")
	if err != nil {
		return CardMetadata{}, err
	}
	return ParseCardFrontMatter(raw)
}

// GetDatasetPage fetches the dataset's public page HTML, which carries the
// "models trained or fine-tuned on" listing the API does not expose.
func (c *Client) GetDatasetPage(ctx context.Context, datasetID string) (string, error) {
	const op = "get_dataset_page"
	id := strings.TrimSpace(datasetID)
	if id == "" {
		return "", opErr(op, OperationErrorValidation, "dataset id required", nil)
	}
	return c.doText(ctx, op, "/datasets/"+escapeID(id))
}

func (c *Client) doJSON(ctx context.Context, op, path string, out any) error {
	resp, err := c.do(ctx, op, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(op, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode hub response failed", err)
	}
	return nil
}

// doJSONPage decodes one listing page and resolves its RFC 5988 rel="next"
// link to a request path on the registry host. An absent, malformed, or
// foreign-host link ends the iteration.
func (c *Client) doJSONPage(ctx context.Context, op, path string, out any) (string, error) {
	resp, err := c.do(ctx, op, path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(op, resp); err != nil {
		return "", err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", opErr(op, OperationErrorDecodeFailed, "decode hub response failed", err)
	}
	return c.nextPagePath(resp.Header.Get("Link")), nil
}

func (c *Client) nextPagePath(header string) string {
	if header == "" {
		return ""
	}
	base, baseErr := url.Parse(c.baseURL)
	for _, part := range strings.Split(header, ",") {
		seg := strings.TrimSpace(part)
		if !strings.Contains(seg, `rel="next"`) {
			continue
		}
		start := strings.IndexByte(seg, '<')
		end := strings.IndexByte(seg, '>')
		if start < 0 || end <= start+1 {
			continue
		}
		u, err := url.Parse(seg[start+1 : end])
		if err != nil || u.Path == "" {
			return ""
		}
		if u.Host != "" && (baseErr != nil || u.Host != base.Host) {
			return ""
		}
		return u.RequestURI()
	}
	return ""
}

func (c *Client) doText(ctx context.Context, op, path string) (string, error) {
	resp, err := c.do(ctx, op, path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(op, resp); err != nil {
		return "", err
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", opErr(op, OperationErrorDecodeFailed, "read hub response failed", err)
	}
	return string(raw), nil
}

func (c *Client) do(ctx context.Context, op, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyHTTPCallError(op, "hub request failed", err)
	}
	return resp, nil
}

func (c *Client) checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	code := OperationErrorRequestFailed
	if resp.StatusCode == http.StatusNotFound {
		code = OperationErrorNotFound
	}
	return &OperationError{
		Code:       code,
		Operation:  op,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("hub http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
	}
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

// escapeID escapes an entity id for use as a path segment while keeping the
// author/name separator literal.
func escapeID(id string) string {
	parts := strings.Split(id, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
