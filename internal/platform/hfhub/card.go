package hfhub

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// CardMetadata is the slice of a model card's YAML front matter the
// classifier cares about.
type CardMetadata struct {
	BaseModel string
	Datasets  []string
}

type cardFrontMatter struct {
	BaseModel       any `yaml:"base_model" json:"base_model"`
	BaseModelName   any `yaml:"base_model_name" json:"base_model_name"`
	BaseModelConfig any `yaml:"base_model_config" json:"base_model_config"`
	Datasets        any `yaml:"datasets" json:"datasets"`
}

// ParseCardFrontMatter extracts metadata from a raw model card. Cards open
// with a YAML block fenced by "---" lines; everything after the closing
// fence is prose and ignored. base_model appears as a scalar or a list
// (merge cards list several); the first entry wins. Cards without front
// matter parse to empty metadata.
func ParseCardFrontMatter(raw string) (CardMetadata, error) {
	block, ok := frontMatterBlock(raw)
	if !ok {
		return CardMetadata{}, nil
	}

	var fm cardFrontMatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return CardMetadata{}, opErr("parse_card", OperationErrorDecodeFailed, "parse card front matter failed", err)
	}
	return cardMetadata(fm), nil
}

// CardMetadataFromJSON decodes the cardData object some listing responses
// embed, saving the raw-card fetch. Returns nil when the payload is absent
// or unusable; callers fall back to ParseCardFrontMatter then.
func CardMetadataFromJSON(raw json.RawMessage) *CardMetadata {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var fm cardFrontMatter
	if err := json.Unmarshal(raw, &fm); err != nil {
		return nil
	}
	meta := cardMetadata(fm)
	return &meta
}

func cardMetadata(fm cardFrontMatter) CardMetadata {
	base := firstString(fm.BaseModel)
	if base == "" {
		base = firstString(fm.BaseModelName)
	}
	if base == "" {
		base = firstString(fm.BaseModelConfig)
	}
	return CardMetadata{
		BaseModel: base,
		Datasets:  stringList(fm.Datasets),
	}
}

func frontMatterBlock(raw string) (string, bool) {
	s := strings.TrimLeft(raw, "﻿\n\r\t ")
	if !strings.HasPrefix(s, "---") {
		return "", false
	}
	rest := s[len("---"):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		return "", false
	}
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// firstString coerces a scalar-or-list YAML value to its first string.
func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
