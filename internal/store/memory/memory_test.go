package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/money"
	"vetpos/backend/internal/store"
)

func TestCreateSaleIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	_, err := s.CreateSale(ctx, store.NewSale{
		Number:        "VTA-20240101-0001",
		PaymentMethod: domain.PaymentCash,
		Lines: []store.SaleLine{
			{ProductID: "prd_pelota", Quantity: 2},
			{ProductID: "prd_collar", Quantity: 4},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Collar Antipulgas Gato")

	pelota, err := s.GetProduct(ctx, "prd_pelota")
	require.NoError(t, err)
	assert.Equal(t, 40, pelota.Stock)

	sales, total, err := s.ListSales(ctx, domain.SaleFilter{Page: 1, PerPage: 20})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, sales)
}

func TestCreateSaleRejectsDuplicateNumber(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	in := store.NewSale{
		Number:        "VTA-20240101-0007",
		PaymentMethod: domain.PaymentNequi,
		Lines:         []store.SaleLine{{ProductID: "prd_pelota", Quantity: 1}},
	}

	sale, err := s.CreateSale(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(900000), sale.Total)

	_, err = s.CreateSale(ctx, in)
	require.ErrorIs(t, err, store.ErrDuplicateNumber)

	pelota, err := s.GetProduct(ctx, "prd_pelota")
	require.NoError(t, err)
	assert.Equal(t, 39, pelota.Stock)
}

func TestCreateSaleRejectsInactiveProduct(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	product, err := s.GetProduct(ctx, "prd_drontal")
	require.NoError(t, err)
	product.Active = false
	_, err = s.UpdateProduct(ctx, *product)
	require.NoError(t, err)

	_, err = s.CreateSale(ctx, store.NewSale{
		Number: "VTA-20240101-0002",
		Lines:  []store.SaleLine{{ProductID: "prd_drontal", Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "prd_drontal")
}

func TestCreateReturnGuardsReturnableQuantity(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	sale, err := s.CreateSale(ctx, store.NewSale{
		Number: "VTA-20240101-0003",
		Lines:  []store.SaleLine{{ProductID: "prd_shampoo", Quantity: 3}},
	})
	require.NoError(t, err)
	line := sale.Items[0]

	ret, err := s.CreateReturn(ctx, store.NewReturn{
		Number: "DEV-20240101-0001",
		SaleID: sale.ID,
		Lines:  []store.ReturnLine{{SaleItemID: line.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, line.UnitPrice.Mul(2), ret.Total)

	_, err = s.CreateReturn(ctx, store.NewReturn{
		Number: "DEV-20240101-0002",
		SaleID: sale.ID,
		Lines:  []store.ReturnLine{{SaleItemID: line.ID, Quantity: 2}},
	})
	require.ErrorIs(t, err, store.ErrOverReturn)

	_, err = s.CreateReturn(ctx, store.NewReturn{
		Number: "DEV-20240101-0003",
		SaleID: sale.ID,
		Lines:  []store.ReturnLine{{SaleItemID: "si_unknown", Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	shampoo, err := s.GetProduct(ctx, "prd_shampoo")
	require.NoError(t, err)
	assert.Equal(t, 9, shampoo.Stock)

	returned, err := s.GetReturnedQtyBySale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, returned[line.ID])
}

func TestSearchProductsIgnoresAccents(t *testing.T) {
	s := NewSeeded()

	products, err := s.SearchProducts(context.Background(), domain.ProductSearch{
		Terms:       []string{"antirrabica"},
		InStockOnly: true,
		Limit:       20,
	})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "prd_vacuna", products[0].ID)
	assert.Equal(t, "Medicamentos", products[0].CategoryName)
}

func TestBillConsultationOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	animal, err := s.CreateAnimal(ctx, domain.Animal{Name: "Luna", Species: "Perro", OwnerName: "Ana"})
	require.NoError(t, err)
	consultation, sale, err := s.CreateConsultation(ctx, store.NewConsultation{
		Consultation: domain.Consultation{
			AnimalID: animal.ID,
			Reason:   "Desparasitación",
			Items:    []domain.ConsultationItem{{ProductID: "prd_drontal", Quantity: 1}},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, sale)

	pending, err := s.ListPendingConsultations(ctx, "lun", 20)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	billed, err := s.BillConsultation(ctx, consultation.ID, store.NewSale{
		Number: "VTA-20240101-0009",
		Lines:  []store.SaleLine{{ProductID: "prd_drontal", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, billed.ID)

	_, err = s.BillConsultation(ctx, consultation.ID, store.NewSale{
		Number: "VTA-20240101-0010",
		Lines:  []store.SaleLine{{ProductID: "prd_drontal", Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrConflict)

	pending, err = s.ListPendingConsultations(ctx, "", 20)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
