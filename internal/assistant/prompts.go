package assistant

import (
	"fmt"
	"strings"

	"vetpos/backend/internal/domain"
)

const noAnswer = "Lo siento, no pude generar una respuesta. Por favor intenta de nuevo."

func classificationPrompt(message string, categories []string) string {
	available := "Medicamentos, Alimentos, Accesorios"
	if len(categories) > 0 {
		available = strings.Join(categories, ", ")
	}
	return fmt.Sprintf(`Analiza esta consulta veterinaria y extrae información estructurada.

CATEGORÍAS DISPONIBLES: %s

CONSULTA DEL USUARIO: %q

Responde SOLO con un JSON con este formato exacto:
{"type": "producto" | "veterinaria" | "mixta", "category": "nombre exacto de categoría o null", "keywords": ["palabra1", "palabra2"], "species": "perro/gato/ave/etc o null", "needs_products": true | false}

REGLAS:
- type: "producto" si busca productos, "veterinaria" si es consulta médica, "mixta" si ambas.
- keywords: términos útiles para buscar en el inventario.
- needs_products: true si hay que buscar en el inventario.`, available, message)
}

func chatPrompt(message string, c domain.Classification, products []domain.Product, searched bool, history []domain.ChatTurn) string {
	var b strings.Builder
	b.WriteString("Eres un veterinario profesional, amable y experto que asiste al personal de la clínica.\n\n")
	b.WriteString("INFORMACIÓN DE LA CONSULTA:\n")
	fmt.Fprintf(&b, "- Tipo: %s\n", c.Type)
	fmt.Fprintf(&b, "- Especie: %s\n", orDefault(c.Species, "no especificada"))
	fmt.Fprintf(&b, "- Categoría de productos: %s\n\n", orDefault(c.Category, "ninguna"))

	b.WriteString("PRODUCTOS RELEVANTES ENCONTRADOS:\n")
	switch {
	case !searched:
		b.WriteString("No se buscaron productos para esta consulta.\n")
	case len(products) == 0:
		b.WriteString("No se encontraron productos que coincidan con la búsqueda.\n")
	default:
		writeProducts(&b, products)
	}

	b.WriteString("\nCÓMO RESPONDER:\n")
	b.WriteString("- Sé cercano y profesional, máximo 7-8 líneas.\n")
	b.WriteString("- Si es una emergencia grave, indica acudir al veterinario de inmediato.\n")
	b.WriteString("- Para consultas de inventario menciona precio y stock.\n")
	b.WriteString("- NO inventes productos que no están en el inventario.\n")

	if len(history) > 0 {
		b.WriteString("\nCONTEXTO DE LA CONVERSACIÓN PREVIA:\n")
		for _, turn := range history {
			switch turn.Role {
			case domain.TurnUser:
				fmt.Fprintf(&b, "Usuario: %s\n", turn.Text)
			case domain.TurnAssistant:
				fmt.Fprintf(&b, "Asistente: %s\n", turn.Text)
			}
		}
	}

	fmt.Fprintf(&b, "\nPREGUNTA ACTUAL: %s\n\nRespuesta breve y directa (considera el contexto previo si es relevante):", message)
	return b.String()
}

func salesHelpPrompt(message string, categories []domain.Category, products []domain.Product) string {
	var b strings.Builder
	b.WriteString("Eres un vendedor experto y asesor en veterinaria. Ayudas al vendedor a encontrar el mejor producto para cada cliente.\n\n")
	b.WriteString("CATEGORÍAS:\n")
	if len(categories) == 0 {
		b.WriteString("No hay categorías definidas\n")
	}
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}
	b.WriteString("\nPRODUCTOS EN STOCK:\n")
	if len(products) == 0 {
		b.WriteString("No hay productos en stock actualmente\n")
	} else {
		writeProducts(&b, products)
	}
	b.WriteString("\nREGLAS:\n")
	b.WriteString("- Recomienda un producto SOLO si coincide con la necesidad según nombre, descripción y categoría.\n")
	b.WriteString("- Nunca inventes información; incluye código de barras, precio y stock de lo que recomiendes.\n")
	b.WriteString("- Si no hay nada adecuado dilo claramente y sugiere qué pedir al proveedor.\n")
	fmt.Fprintf(&b, "\nConsulta del cliente: %s\n\nResponde como vendedor experto en veterinaria:", message)
	return b.String()
}

func writeProducts(b *strings.Builder, products []domain.Product) {
	for _, p := range products {
		fmt.Fprintf(b, "- %s (%s): %s - Precio: $%s - Stock: %d unidades - Código: %s\n",
			p.Name, orDefault(p.CategoryName, "Sin categoría"), p.Description, p.SalePrice, p.Stock, p.Barcode)
	}
}

func orDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
