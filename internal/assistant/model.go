package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vetpos/backend/internal/domain"
)

//go:generate mockgen -source=model.go -destination=model_mock.go -package=assistant

var (
	ErrUnavailable = errors.New("assistant unavailable")
	ErrUpstream    = errors.New("assistant upstream error")
)

// Model is a text-in, text-out language model.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Classifier interface {
	Classify(ctx context.Context, message string, categories []string) (domain.Classification, error)
}

type Answerer interface {
	Answer(ctx context.Context, prompt string) (string, error)
}

type ModelClassifier struct {
	Model Model
}

func (c ModelClassifier) Classify(ctx context.Context, message string, categories []string) (domain.Classification, error) {
	raw, err := c.Model.Generate(ctx, classificationPrompt(message, categories))
	if err != nil {
		return domain.Classification{}, err
	}
	return parseClassification(raw)
}

type ModelAnswerer struct {
	Model Model
}

func (a ModelAnswerer) Answer(ctx context.Context, prompt string) (string, error) {
	return a.Model.Generate(ctx, prompt)
}

// parseClassification accepts the JSON object even when the model wraps it
// in a markdown fence or surrounding prose.
func parseClassification(raw string) (domain.Classification, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return domain.Classification{}, fmt.Errorf("classification: no JSON object in %q", raw)
	}

	var c domain.Classification
	if err := json.Unmarshal([]byte(raw[start:end+1]), &c); err != nil {
		return domain.Classification{}, fmt.Errorf("classification: %w", err)
	}
	switch c.Type {
	case domain.QueryProduct, domain.QueryVeterinary, domain.QueryMixed:
	default:
		c.Type = domain.QueryProduct
	}
	if c.Keywords == nil {
		c.Keywords = []string{}
	}
	if strings.EqualFold(c.Category, "null") {
		c.Category = ""
	}
	if strings.EqualFold(c.Species, "null") {
		c.Species = ""
	}
	return c, nil
}
