package provider

import (
	"fmt"
	"strings"
)

// ModelRef names a model as "provider/model". Only the first slash
// separates the two, so model IDs may contain slashes themselves.
type ModelRef string

func NewModelRef(providerID, modelID string) ModelRef {
	return ModelRef(providerID + "/" + modelID)
}

func (r ModelRef) split() (providerID, modelID string, ok bool) {
	return strings.Cut(string(r), "/")
}

// Provider returns the provider part, or "" for a bare model ID.
func (r ModelRef) Provider() string {
	p, _, ok := r.split()
	if !ok {
		return ""
	}
	return p
}

// Model returns the model part. A bare model ID is returned whole.
func (r ModelRef) Model() string {
	_, m, ok := r.split()
	if !ok {
		return string(r)
	}
	return m
}

func (r ModelRef) String() string { return string(r) }

func (r ModelRef) Valid() bool {
	return r.Provider() != "" && r.Model() != ""
}

func ParseModelRef(s string) (ModelRef, error) {
	ref := ModelRef(s)
	if !ref.Valid() {
		return "", fmt.Errorf("invalid model ref %q: expected provider/model", s)
	}
	return ref, nil
}

// ModelInfo is what a provider declares about one of its models.
type ModelInfo struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	ProviderID string `yaml:"-"`
	// MaxTokens is the longest completion the model serves. Zero means
	// the backend decides.
	MaxTokens int `yaml:"max_tokens"`
}

func (m ModelInfo) Ref() ModelRef {
	return NewModelRef(m.ProviderID, m.ID)
}

// Clamp lowers the requested completion length to the model's limit.
// An unset request takes the limit itself.
func (m ModelInfo) Clamp(params GenerationParameters) GenerationParameters {
	if m.MaxTokens > 0 && (params.MaxTokens <= 0 || params.MaxTokens > m.MaxTokens) {
		params.MaxTokens = m.MaxTokens
	}
	return params
}

// ModelOf returns the info p declares for modelID.
func ModelOf(p Provider, modelID string) (ModelInfo, bool) {
	for _, m := range p.Models() {
		if m.ID == modelID {
			return m, true
		}
	}
	return ModelInfo{}, false
}
