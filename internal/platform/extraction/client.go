// Package extraction is the boundary to the AI document-extraction
// collaborator. Its output is untrusted: every field is validated
// defensively before use.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Candidate is one extracted field as reported by the collaborator.
// Confidence is passed through as reported; callers normalize it.
type Candidate struct {
	Field      string
	Value      string
	Units      string
	Category   string
	Confidence float64
}

// Extractor produces candidate fields from free document text.
type Extractor interface {
	ExtractText(ctx context.Context, text string) ([]Candidate, error)
}

// Client calls the extraction service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "extraction").Logger(),
	}
}

// ExtractText posts the document text and decodes the candidate list.
// Items with a missing or ill-typed field/value are dropped and logged, not
// propagated as errors: one bad candidate must not lose the rest.
func (c *Client) ExtractText(ctx context.Context, text string) ([]Candidate, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("extraction: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("extraction: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction: call service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction: service returned status %d", resp.StatusCode)
	}

	var payload struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("extraction: decode response: %w", err)
	}

	return DecodeCandidates(payload.Results, c.logger), nil
}

// DecodeCandidates converts raw collaborator items into Candidates, skipping
// anything without a usable field name and value.
func DecodeCandidates(items []json.RawMessage, logger zerolog.Logger) []Candidate {
	var out []Candidate
	for i, raw := range items {
		var m map[string]interface{}
		if err := json.Unmarshal(raw, &m); err != nil {
			logger.Warn().Int("index", i).Err(err).Msg("skipping unparseable extraction item")
			continue
		}

		field, fieldOK := stringVal(m, "field")
		value, valueOK := anyToString(m["value"])
		if !fieldOK || field == "" || !valueOK || value == "" {
			logger.Warn().Int("index", i).Msg("skipping extraction item without field/value")
			continue
		}

		cand := Candidate{Field: field, Value: value}
		cand.Units, _ = stringVal(m, "units")
		cand.Category, _ = stringVal(m, "category")
		if conf, ok := floatVal(m, "confidence"); ok {
			cand.Confidence = conf
		}
		out = append(out, cand)
	}
	return out
}

func stringVal(m map[string]interface{}, key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

func floatVal(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func anyToString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return fmt.Sprintf("%g", t), true
	default:
		return "", false
	}
}
