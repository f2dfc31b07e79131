package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"vetpos/backend/internal/cache"
	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/store/memory"
)

type mapCache struct {
	entries map[string]domain.Classification
	corrupt map[string]bool
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.Classification, bool, error) {
	if c.corrupt[key] {
		delete(c.corrupt, key)
		return nil, false, cache.ErrCorruptEntry
	}
	v, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *mapCache) Set(_ context.Context, key string, value *domain.Classification, _ time.Duration) error {
	c.entries[key] = *value
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *MockClassifier, *MockAnswerer, *mapCache) {
	t.Helper()
	ctrl := gomock.NewController(t)
	classifier := NewMockClassifier(ctrl)
	answerer := NewMockAnswerer(ctrl)
	c := &mapCache{entries: map[string]domain.Classification{}, corrupt: map[string]bool{}}
	return &Engine{
		classifier: classifier,
		answerer:   answerer,
		catalog:    memory.NewSeeded(),
		cache:      c,
		cacheTTL:   time.Minute,
		logger:     zap.NewNop(),
	}, classifier, answerer, c
}

func TestChatWidensSearchWithSynonyms(t *testing.T) {
	engine, classifier, answerer, _ := newTestEngine(t)

	classifier.EXPECT().
		Classify(gomock.Any(), "algo para desparasitar a mi perro", gomock.Any()).
		Return(domain.Classification{
			Type:          domain.QueryProduct,
			Keywords:      []string{"desparasitante"},
			Species:       "perro",
			NeedsProducts: true,
		}, nil)
	answerer.EXPECT().Answer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, prompt string) (string, error) {
			assert.Contains(t, prompt, "Drontal Plus Antiparasitario")
			assert.Contains(t, prompt, "Especie: perro")
			return "Te recomiendo Drontal Plus.", nil
		})

	resp, err := engine.Chat(context.Background(), domain.AssistantRequest{Message: "algo para desparasitar a mi perro"})
	require.NoError(t, err)
	assert.Equal(t, "Te recomiendo Drontal Plus.", resp.Answer)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, "prd_drontal", resp.Products[0].ID)
	assert.Equal(t, "Medicamentos", resp.Products[0].Category)
}

func TestChatSearchesByCategoryWhenKeywordsMiss(t *testing.T) {
	engine, classifier, answerer, _ := newTestEngine(t)

	classifier.EXPECT().Classify(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.Classification{
			Type:          domain.QueryProduct,
			Category:      "higiene",
			Keywords:      []string{"xyz"},
			NeedsProducts: true,
		}, nil)
	answerer.EXPECT().Answer(gomock.Any(), gomock.Any()).Return("ok", nil)

	resp, err := engine.Chat(context.Background(), domain.AssistantRequest{Message: "cosas de aseo"})
	require.NoError(t, err)
	// Arena is out of stock.
	require.Len(t, resp.Products, 1)
	assert.Equal(t, "prd_shampoo", resp.Products[0].ID)
}

func TestChatFallsBackWhenClassifierFails(t *testing.T) {
	engine, classifier, answerer, cache := newTestEngine(t)

	classifier.EXPECT().Classify(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.Classification{}, errors.New("bad json"))
	answerer.EXPECT().Answer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, prompt string) (string, error) {
			assert.Contains(t, prompt, "No se encontraron productos")
			return "", nil
		})

	resp, err := engine.Chat(context.Background(), domain.AssistantRequest{Message: "hola"})
	require.NoError(t, err)
	assert.Equal(t, noAnswer, resp.Answer)
	require.NotNil(t, resp.Classification)
	assert.Equal(t, domain.QueryProduct, resp.Classification.Type)
	assert.True(t, resp.Classification.NeedsProducts)
	assert.Empty(t, resp.Products)
	assert.Empty(t, cache.entries)
}

func TestChatReusesCachedClassification(t *testing.T) {
	engine, _, answerer, c := newTestEngine(t)
	c.entries[cache.MessageKey("¿Qué vacunas  necesita un GATO?")] = domain.Classification{
		Type: domain.QueryVeterinary,
	}

	answerer.EXPECT().Answer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, prompt string) (string, error) {
			assert.Contains(t, prompt, "No se buscaron productos")
			return "Triple felina y rabia.", nil
		})

	resp, err := engine.Chat(context.Background(), domain.AssistantRequest{Message: "¿qué vacunas necesita un gato?"})
	require.NoError(t, err)
	assert.Equal(t, domain.QueryVeterinary, resp.Classification.Type)
	assert.Empty(t, resp.Products)
}

func TestChatReclassifiesCorruptCacheEntry(t *testing.T) {
	engine, classifier, answerer, c := newTestEngine(t)
	key := cache.MessageKey("¿y para perros?")
	c.corrupt[key] = true

	classifier.EXPECT().Classify(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.Classification{Type: domain.QueryVeterinary}, nil)
	answerer.EXPECT().Answer(gomock.Any(), gomock.Any()).Return("Depende de la edad.", nil)

	resp, err := engine.Chat(context.Background(), domain.AssistantRequest{Message: "¿Y para PERROS?"})
	require.NoError(t, err)
	assert.Equal(t, domain.QueryVeterinary, resp.Classification.Type)
	assert.Equal(t, domain.QueryVeterinary, c.entries[key].Type)
}

func TestChatKeepsOnlyRecentHistory(t *testing.T) {
	engine, classifier, answerer, _ := newTestEngine(t)

	history := make([]domain.ChatTurn, 0, 8)
	for i := 0; i < 8; i++ {
		role := domain.TurnUser
		if i%2 == 1 {
			role = domain.TurnAssistant
		}
		history = append(history, domain.ChatTurn{Role: role, Text: "turno-" + string(rune('a'+i))})
	}

	classifier.EXPECT().Classify(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.Classification{Type: domain.QueryVeterinary}, nil)
	answerer.EXPECT().Answer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, prompt string) (string, error) {
			assert.NotContains(t, prompt, "turno-a")
			assert.NotContains(t, prompt, "turno-b")
			assert.Contains(t, prompt, "Usuario: turno-c")
			assert.Contains(t, prompt, "Asistente: turno-h")
			return "ok", nil
		})

	_, err := engine.Chat(context.Background(), domain.AssistantRequest{Message: "y ahora?", History: history})
	require.NoError(t, err)
}

func TestChatPropagatesUnavailable(t *testing.T) {
	engine, classifier, answerer, _ := newTestEngine(t)

	classifier.EXPECT().Classify(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.FallbackClassification(), nil)
	answerer.EXPECT().Answer(gomock.Any(), gomock.Any()).Return("", ErrUnavailable)

	_, err := engine.Chat(context.Background(), domain.AssistantRequest{Message: "pelota"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChatRejectsBlankMessage(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	_, err := engine.Chat(context.Background(), domain.AssistantRequest{Message: "   "})
	assert.Error(t, err)
}

func TestSalesHelpSendsInStockCatalog(t *testing.T) {
	engine, _, answerer, _ := newTestEngine(t)

	answerer.EXPECT().Answer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, prompt string) (string, error) {
			assert.Contains(t, prompt, "Pelota de Caucho")
			assert.Contains(t, prompt, "Precio: $9000.00")
			assert.NotContains(t, prompt, "Arena Sanitaria")
			assert.Contains(t, prompt, "Higiene: Shampoo, arena y cuidado")
			return "Ofrece la pelota.", nil
		})

	resp, err := engine.SalesHelp(context.Background(), "un juguete barato")
	require.NoError(t, err)
	assert.Equal(t, "Ofrece la pelota.", resp.Answer)
	assert.Nil(t, resp.Classification)
	assert.Len(t, resp.Products, 8)
}

func TestParseClassificationToleratesFences(t *testing.T) {
	raw := "```json\n{\"type\": \"otro\", \"category\": \"null\", \"keywords\": null, \"species\": \"gato\", \"needs_products\": true}\n```"
	c, err := parseClassification(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.QueryProduct, c.Type)
	assert.Empty(t, c.Category)
	assert.Equal(t, []string{}, c.Keywords)
	assert.Equal(t, "gato", c.Species)
	assert.True(t, c.NeedsProducts)

	_, err = parseClassification("no puedo responder")
	assert.Error(t, err)
}

func TestModelClassifierSendsCategories(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModel(ctrl)
	model.EXPECT().Generate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, prompt string) (string, error) {
			assert.True(t, strings.Contains(prompt, "Alimentos, Higiene"))
			return `{"type":"mixta","keywords":["pulgas"],"needs_products":true}`, nil
		})

	c, err := ModelClassifier{Model: model}.Classify(context.Background(), "pulgas", []string{"Alimentos", "Higiene"})
	require.NoError(t, err)
	assert.Equal(t, domain.QueryMixed, c.Type)
	assert.Equal(t, []string{"pulgas"}, c.Keywords)
}
