package domain

import "vetpos/backend/internal/money"

const (
	QueryProduct    = "producto"
	QueryVeterinary = "veterinaria"
	QueryMixed      = "mixta"
)

type Classification struct {
	Type          string   `json:"type"`
	Category      string   `json:"category,omitempty"`
	Keywords      []string `json:"keywords"`
	Species       string   `json:"species,omitempty"`
	NeedsProducts bool     `json:"needs_products"`
}

// FallbackClassification is used whenever the model cannot classify a
// message; it searches the catalog rather than answering blind.
func FallbackClassification() Classification {
	return Classification{Type: QueryProduct, Keywords: []string{}, NeedsProducts: true}
}

type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

const (
	TurnUser      = "user"
	TurnAssistant = "assistant"
)

type AssistantRequest struct {
	Message string     `json:"message"`
	History []ChatTurn `json:"history"`
}

type SuggestedProduct struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Price       money.Amount `json:"price"`
	Stock       int          `json:"stock"`
	Category    string       `json:"category"`
	Barcode     string       `json:"barcode"`
}

type AssistantResponse struct {
	Answer         string             `json:"answer"`
	Classification *Classification    `json:"classification,omitempty"`
	Products       []SuggestedProduct `json:"products"`
}
