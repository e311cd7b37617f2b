package openrouter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// Model describes one selectable model in the catalog.
type Model struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	ContextLength int      `json:"contextLength,omitempty"`
	Pricing       *Pricing `json:"pricing,omitempty"`
	CreatedAt     int64    `json:"createdAt,omitempty"`
	IsOpenSource  bool     `json:"isOpenSource"`
	IsNew         bool     `json:"isNew"`
}

// Pricing carries per-token prices as decimal strings, the way the
// upstream API reports them.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// DefaultModels is the curated fallback list served when the upstream
// catalog is unreachable or no API key is configured.
var DefaultModels = []Model{
	{ID: "openai/gpt-4o", Name: "GPT-4o", Description: "OpenAI's flagship multimodal model"},
	{ID: "anthropic/claude-sonnet-4", Name: "Claude Sonnet 4", Description: "Anthropic's balanced model"},
	{ID: "google/gemini-2.5-pro-preview", Name: "Gemini 2.5 Pro", Description: "Google's advanced reasoning model"},
	{ID: "deepseek/deepseek-r1", Name: "DeepSeek R1", Description: "DeepSeek's reasoning model", IsOpenSource: true},
	{ID: "meta-llama/llama-4-maverick", Name: "Llama 4 Maverick", Description: "Meta's open-source frontier model", IsOpenSource: true},
	{ID: "qwen/qwen3-235b-a22b", Name: "Qwen3 235B", Description: "Alibaba's large-scale model", IsOpenSource: true},
}

var openSourceProviders = map[string]struct{}{
	"meta-llama": {}, "mistralai": {}, "deepseek": {}, "qwen": {},
	"nousresearch": {}, "allenai": {}, "microsoft": {}, "nvidia": {},
	"thedrummer": {}, "openchat": {}, "cognitivecomputations": {},
	"eleutherai": {}, "upstage": {}, "tngtech": {}, "arcee-ai": {},
	"ibm-granite": {},
}

var openSourceKeywords = []string{
	"llama", "mistral", "mixtral", "gemma", "phi-", "qwen", "deepseek",
	"yi-", "command-r", "dbrx", "falcon", "olmo", "starcoder", "codellama",
	"wizardlm", "vicuna", "solar", "nous", "hermes", "openchat",
}

func isOpenSource(modelID string) bool {
	providerName, _, _ := strings.Cut(modelID, "/")
	if _, ok := openSourceProviders[providerName]; ok {
		return true
	}
	lower := strings.ToLower(modelID)
	return lo.SomeBy(openSourceKeywords, func(kw string) bool {
		return strings.Contains(lower, kw)
	})
}

// DisplayName derives a human-readable name from a model id. Curated
// models use their catalog name; everything else is cleaned up from the
// path segment after the provider prefix.
func DisplayName(modelID string) string {
	for _, m := range DefaultModels {
		if m.ID == modelID {
			return m.Name
		}
	}
	name := modelID
	if _, after, ok := strings.Cut(modelID, "/"); ok {
		name = after
	}
	words := strings.Split(strings.ReplaceAll(name, "-", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

const catalogKey = "models"

type catalogEntry struct {
	models    []Model
	fetchedAt time.Time
}

// Catalog serves the model list with an in-memory cache in front of the
// upstream /models endpoint.
type Catalog struct {
	client *Client
	ttl    time.Duration
	cache  *haxmap.Map[string, catalogEntry]
	now    func() time.Time
}

// NewCatalog creates a catalog backed by client. A ttl of zero disables
// caching.
func NewCatalog(client *Client, ttl time.Duration) *Catalog {
	return &Catalog{
		client: client,
		ttl:    ttl,
		cache:  haxmap.New[string, catalogEntry](),
		now:    time.Now,
	}
}

// List returns the available models, most recently fetched within the
// cache TTL. Any upstream failure, as well as a missing API key, falls
// back to the curated default list; the caller never sees an error.
func (c *Catalog) List(ctx context.Context) []Model {
	if entry, ok := c.cache.Get(catalogKey); ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.models
	}

	models, err := c.fetch(ctx)
	if err != nil {
		return DefaultModels
	}

	c.cache.Set(catalogKey, catalogEntry{models: models, fetchedAt: c.now()})
	return models
}

func (c *Catalog) fetch(ctx context.Context) ([]Model, error) {
	if c.client.apiKey == "" {
		return nil, fmt.Errorf("no api key configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.client.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.client.apiKey)

	resp, err := c.client.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter models error (%d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	cutoff := c.now().Add(-30 * 24 * time.Hour).Unix()
	var models []Model
	gjson.GetBytes(body, "data").ForEach(func(_, m gjson.Result) bool {
		id := m.Get("id").String()
		if id == "" || strings.Contains(id, ":extended") {
			return true
		}
		name := m.Get("name").String()
		if name == "" {
			name = id
		}
		created := m.Get("created").Int()
		models = append(models, Model{
			ID:            id,
			Name:          name,
			Description:   m.Get("description").String(),
			ContextLength: int(m.Get("context_length").Int()),
			Pricing: &Pricing{
				Prompt:     m.Get("pricing.prompt").String(),
				Completion: m.Get("pricing.completion").String(),
			},
			CreatedAt:    created,
			IsOpenSource: isOpenSource(id),
			IsNew:        created > cutoff,
		})
		return true
	})

	if len(models) == 0 {
		return nil, fmt.Errorf("empty model list")
	}
	slices.SortFunc(models, func(a, b Model) int {
		return strings.Compare(a.Name, b.Name)
	})
	return models, nil
}
