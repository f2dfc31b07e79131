package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"vetpos/backend/internal/assistant"
	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/store"
)

const receiptWidth = 32

var (
	escposInit       = []byte{0x1b, 0x40}
	escposPartialCut = []byte{0x1d, 0x56, 0x41, 0x10}
	// Drawer kick on pin 2.
	escposDrawerPulse = []byte{0x1b, 0x70, 0x00, 0x19, 0xfa}
)

// Settings returns the stored business settings, or the defaults when none
// were saved yet.
func (s *Service) Settings(ctx context.Context) (domain.BusinessSettings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.BusinessSettings{}, err
	}
	return *settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsRequest) (domain.BusinessSettings, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.BusinessSettings{}, err
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return domain.BusinessSettings{}, invalid("email is not valid")
	}

	saved, err := s.repo.SaveSettings(ctx, domain.BusinessSettings{
		Name:     defaultString(strings.TrimSpace(req.Name), domain.DefaultBusinessName),
		TaxID:    strings.TrimSpace(req.TaxID),
		Address:  strings.TrimSpace(req.Address),
		Phone:    strings.TrimSpace(req.Phone),
		Email:    email,
		LogoPath: strings.TrimSpace(req.LogoPath),
	})
	if err != nil {
		return domain.BusinessSettings{}, err
	}

	s.logAudit(ctx, "settings_update", "settings", "business", "name="+saved.Name)
	return *saved, nil
}

// BuildReceipt renders a sale as ESC/POS bytes for a thermal printer.
func (s *Service) BuildReceipt(ctx context.Context, saleID string) (domain.ReceiptResponse, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.ReceiptResponse{}, invalid("sale_id is required")
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	business, err := s.Settings(ctx)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	rule := strings.Repeat("=", receiptWidth)
	thin := strings.Repeat("-", receiptWidth)
	lines := []string{business.Name}
	if business.TaxID != "" {
		lines = append(lines, "NIT: "+business.TaxID)
	}
	if business.Address != "" {
		lines = append(lines, business.Address)
	}
	if business.Phone != "" {
		lines = append(lines, "Tel: "+business.Phone)
	}
	lines = append(lines,
		rule,
		"Venta: "+sale.Number,
		"Fecha: "+sale.CreatedAt.In(s.location).Format("2006-01-02 15:04"),
		"Atendió: "+defaultString(sale.Username, "-"),
		thin,
	)
	for _, item := range sale.Items {
		lines = append(lines, item.ProductName)
		lines = append(lines, receiptRow(fmt.Sprintf("  %d x %s", item.Quantity, item.UnitPrice), item.Subtotal.String()))
	}
	lines = append(lines,
		thin,
		receiptRow("TOTAL", "$"+sale.Total.String()),
		receiptRow("Pago", paymentLabel(sale.PaymentMethod)),
		rule,
		"Gracias por su compra",
		"",
	)

	escpos := append([]byte{}, escposInit...)
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, escposPartialCut...)

	return domain.ReceiptResponse{
		SaleID:       sale.ID,
		Number:       sale.Number,
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(lines, "\n"),
		FileName:     fmt.Sprintf("recibo-%s.bin", sale.Number),
	}, nil
}

func receiptRow(left string, right string) string {
	gap := receiptWidth - len([]rune(left)) - len([]rune(right))
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func paymentLabel(method string) string {
	switch method {
	case domain.PaymentCash:
		return "Efectivo"
	case domain.PaymentNequi:
		return "Nequi"
	case domain.PaymentDaviplata:
		return "Daviplata"
	default:
		return method
	}
}

func (s *Service) OpenCashDrawer(_ context.Context, req domain.CashDrawerOpenRequest) (domain.CashDrawerOpenResponse, error) {
	terminalID := strings.TrimSpace(req.TerminalID)
	if terminalID == "" {
		terminalID = "caja-principal"
	}
	return domain.CashDrawerOpenResponse{
		TerminalID:    terminalID,
		CommandBase64: base64.StdEncoding.EncodeToString(escposDrawerPulse),
		RequestedAt:   s.now().UTC(),
	}, nil
}

// Invoice gathers the data of the printable invoice. When the sale billed a
// consultation, the patient is included.
func (s *Service) Invoice(ctx context.Context, saleID string) (domain.Invoice, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.Invoice{}, err
	}
	business, err := s.Settings(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}
	returned, err := s.repo.ReturnTotalsBySale(ctx, []string{sale.ID})
	if err != nil {
		return domain.Invoice{}, err
	}

	invoice := domain.Invoice{
		Business:      business,
		Sale:          *sale,
		Cashier:       sale.Username,
		ReturnedTotal: returned[sale.ID],
		NetTotal:      sale.Total - returned[sale.ID],
		IssuedAt:      s.now().UTC(),
	}

	consultation, err := s.repo.GetConsultationBySale(ctx, sale.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return invoice, nil
	case err != nil:
		return domain.Invoice{}, err
	}
	invoice.Consultation = consultation
	if animal, err := s.repo.GetAnimal(ctx, consultation.AnimalID); err == nil {
		invoice.Animal = animal
	} else {
		s.logger.Warn("invoice patient lookup failed", zap.String("animal_id", consultation.AnimalID), zap.Error(err))
	}
	return invoice, nil
}

func (s *Service) AssistantChat(ctx context.Context, req domain.AssistantRequest) (domain.AssistantResponse, error) {
	if s.assistant == nil {
		return domain.AssistantResponse{}, assistant.ErrUnavailable
	}
	if strings.TrimSpace(req.Message) == "" {
		return domain.AssistantResponse{}, invalid("message is required")
	}
	return s.assistant.Chat(ctx, req)
}

func (s *Service) AssistantSalesHelp(ctx context.Context, message string) (domain.AssistantResponse, error) {
	if s.assistant == nil {
		return domain.AssistantResponse{}, assistant.ErrUnavailable
	}
	if strings.TrimSpace(message) == "" {
		return domain.AssistantResponse{}, invalid("message is required")
	}
	return s.assistant.SalesHelp(ctx, message)
}
