package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"vetpos/backend/internal/cache"
	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/store"
)

const (
	searchLimit  = 20
	historyTurns = 6
)

// synonyms widens a keyword search when the direct one found nothing.
var synonyms = map[string][]string{
	"antiparasit": {"parasit", "drontal", "vermifugo"},
	"desparasit":  {"parasit", "drontal", "vermifugo"},
	"pulga":       {"antipulgas", "pulgas", "nexgard"},
	"garrapata":   {"antipulgas", "nexgard"},
	"vacun":       {"vacuna"},
	"concentrado": {"chow", "alimento"},
}

// Catalog is the part of the store the assistant reads.
type Catalog interface {
	SearchProducts(ctx context.Context, search domain.ProductSearch) ([]domain.Product, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]domain.Category, error)
}

type Engine struct {
	classifier Classifier
	answerer   Answerer
	catalog    Catalog
	cache      cache.ClassificationCache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

func NewEngine(model Model, catalog Catalog, cacheStore cache.ClassificationCache, cacheTTL time.Duration, logger *zap.Logger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopClassificationCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		classifier: ModelClassifier{Model: model},
		answerer:   ModelAnswerer{Model: model},
		catalog:    catalog,
		cache:      cacheStore,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// Chat runs classify, search and answer for a free-form question.
func (e *Engine) Chat(ctx context.Context, req domain.AssistantRequest) (domain.AssistantResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return domain.AssistantResponse{}, fmt.Errorf("%w: message required", store.ErrInvalidTransaction)
	}

	categories, err := e.catalog.ListCategories(ctx, true)
	if err != nil {
		return domain.AssistantResponse{}, err
	}
	classification := e.classify(ctx, message, categories)

	var products []domain.Product
	if classification.NeedsProducts {
		products, err = e.searchProducts(ctx, classification, categories)
		if err != nil {
			return domain.AssistantResponse{}, err
		}
	}

	prompt := chatPrompt(message, classification, products, classification.NeedsProducts, recentHistory(req.History))
	answer, err := e.answerer.Answer(ctx, prompt)
	if err != nil {
		return domain.AssistantResponse{}, err
	}
	if answer == "" {
		answer = noAnswer
	}
	return domain.AssistantResponse{
		Answer:         answer,
		Classification: &classification,
		Products:       suggestions(products),
	}, nil
}

// SalesHelp answers with the whole in-stock catalog as context.
func (e *Engine) SalesHelp(ctx context.Context, message string) (domain.AssistantResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.AssistantResponse{}, fmt.Errorf("%w: message required", store.ErrInvalidTransaction)
	}

	categories, err := e.catalog.ListCategories(ctx, true)
	if err != nil {
		return domain.AssistantResponse{}, err
	}
	products, err := e.catalog.SearchProducts(ctx, domain.ProductSearch{InStockOnly: true})
	if err != nil {
		return domain.AssistantResponse{}, err
	}

	answer, err := e.answerer.Answer(ctx, salesHelpPrompt(message, categories, products))
	if err != nil {
		return domain.AssistantResponse{}, err
	}
	if answer == "" {
		answer = noAnswer
	}
	return domain.AssistantResponse{Answer: answer, Products: suggestions(products)}, nil
}

func (e *Engine) classify(ctx context.Context, message string, categories []domain.Category) domain.Classification {
	key := cache.MessageKey(message)
	cached, ok, err := e.cache.Get(ctx, key)
	switch {
	case err == nil && ok:
		return *cached
	case errors.Is(err, cache.ErrCorruptEntry):
		e.logger.Info("discarded classification cache entry", zap.Error(err))
	case err != nil:
		e.logger.Warn("classification cache read failed", zap.Error(err))
	}

	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	classification, err := e.classifier.Classify(ctx, message, names)
	if err != nil {
		e.logger.Warn("classification failed, using fallback", zap.Error(err))
		return domain.FallbackClassification()
	}
	if err := e.cache.Set(ctx, key, &classification, e.cacheTTL); err != nil {
		e.logger.Warn("classification cache write failed", zap.Error(err))
	}
	return classification
}

// searchProducts tries keywords, then the category, then synonyms.
func (e *Engine) searchProducts(ctx context.Context, c domain.Classification, categories []domain.Category) ([]domain.Product, error) {
	if len(c.Keywords) > 0 {
		products, err := e.catalog.SearchProducts(ctx, domain.ProductSearch{Terms: c.Keywords, InStockOnly: true, Limit: searchLimit})
		if err != nil || len(products) > 0 {
			return products, err
		}
	}

	if c.Category != "" {
		wanted := store.Fold(c.Category)
		for _, category := range categories {
			if store.Fold(category.Name) != wanted {
				continue
			}
			products, err := e.catalog.SearchProducts(ctx, domain.ProductSearch{CategoryID: category.ID, InStockOnly: true, Limit: searchLimit})
			if err != nil || len(products) > 0 {
				return products, err
			}
			break
		}
	}

	widened := widenKeywords(c.Keywords)
	if len(widened) == len(c.Keywords) {
		return nil, nil
	}
	return e.catalog.SearchProducts(ctx, domain.ProductSearch{Terms: widened, InStockOnly: true, Limit: searchLimit})
}

func widenKeywords(keywords []string) []string {
	out := append([]string{}, keywords...)
	seen := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		seen[store.Fold(k)] = struct{}{}
	}
	for _, k := range keywords {
		folded := store.Fold(k)
		for stem, extra := range synonyms {
			if !strings.Contains(folded, stem) {
				continue
			}
			for _, term := range extra {
				if _, ok := seen[term]; ok {
					continue
				}
				seen[term] = struct{}{}
				out = append(out, term)
			}
		}
	}
	return out
}

func recentHistory(history []domain.ChatTurn) []domain.ChatTurn {
	if len(history) > historyTurns {
		return history[len(history)-historyTurns:]
	}
	return history
}

func suggestions(products []domain.Product) []domain.SuggestedProduct {
	out := make([]domain.SuggestedProduct, 0, len(products))
	for _, p := range products {
		out = append(out, domain.SuggestedProduct{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.SalePrice,
			Stock:       p.Stock,
			Category:    orDefault(p.CategoryName, "Sin categoría"),
			Barcode:     p.Barcode,
		})
	}
	return out
}

