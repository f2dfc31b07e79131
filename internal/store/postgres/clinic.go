package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/xid"
)

const animalColumns = `id, name, species, breed, age_years, age_months, owner_name, owner_phone, notes, active, created_at`

func (s *Store) CreateAnimal(ctx context.Context, animal domain.Animal) (*domain.Animal, error) {
	if animal.Name == "" || animal.Species == "" || animal.OwnerName == "" {
		return nil, store.ErrInvalidTransaction
	}
	if animal.ID == "" {
		animal.ID = xid.New("ani")
	}
	if animal.CreatedAt.IsZero() {
		animal.CreatedAt = time.Now().UTC()
	}
	animal.Active = true
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO animals (`+animalColumns+`)
		VALUES (:id, :name, :species, :breed, :age_years, :age_months, :owner_name, :owner_phone, :notes, :active, :created_at)
	`, animal)
	if err != nil {
		return nil, err
	}
	created := animal
	return &created, nil
}

func (s *Store) GetAnimal(ctx context.Context, id string) (*domain.Animal, error) {
	var animal domain.Animal
	if err := s.db.GetContext(ctx, &animal, `SELECT `+animalColumns+` FROM animals WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &animal, nil
}

func (s *Store) UpdateAnimal(ctx context.Context, animal domain.Animal) (*domain.Animal, error) {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE animals
		SET name = :name, species = :species, breed = :breed, age_years = :age_years, age_months = :age_months,
			owner_name = :owner_name, owner_phone = :owner_phone, notes = :notes, active = :active
		WHERE id = :id
	`, animal)
	if err != nil {
		return nil, err
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return s.GetAnimal(ctx, animal.ID)
}

func (s *Store) ListAnimals(ctx context.Context, filter domain.AnimalFilter) ([]domain.Animal, error) {
	var w where
	if !filter.IncludeInactive {
		w.add("active")
	}
	if species := store.Fold(filter.Species); species != "" {
		w.add(foldSQL("species")+" = ?", species)
	}
	if query := store.Fold(filter.Query); query != "" {
		w.add("("+foldSQL("name")+" LIKE ? OR "+foldSQL("owner_name")+" LIKE ?)", likePattern(query), likePattern(query))
	}
	sqlText := `SELECT ` + animalColumns + ` FROM animals` + w.sql() + ` ORDER BY name, id`
	if filter.Limit > 0 {
		sqlText += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	animals := make([]domain.Animal, 0, 32)
	if err := s.db.SelectContext(ctx, &animals, sqlText, w.args...); err != nil {
		return nil, err
	}
	return animals, nil
}

func (s *Store) ListSpecies(ctx context.Context) ([]string, error) {
	species := make([]string, 0, 8)
	if err := s.db.SelectContext(ctx, &species, `SELECT DISTINCT species FROM animals WHERE active ORDER BY species`); err != nil {
		return nil, err
	}
	return species, nil
}

const consultationSelect = `
	SELECT c.id, c.animal_id, a.name AS animal_name, a.owner_name, c.consulted_at, c.reason, c.diagnosis,
		c.treatment, c.observations, COALESCE(c.sale_id, '') AS sale_id, COALESCE(c.user_id, '') AS user_id,
		c.created_at
	FROM consultations c
	JOIN animals a ON a.id = c.animal_id
`

func (s *Store) CreateConsultation(ctx context.Context, in store.NewConsultation) (*domain.Consultation, *domain.Sale, error) {
	consultation := in.Consultation
	if strings.TrimSpace(consultation.Reason) == "" {
		return nil, nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var active bool
	err = tx.GetContext(ctx, &active, `SELECT active FROM animals WHERE id = $1 FOR SHARE`, consultation.AnimalID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, err
	}
	if !active {
		return nil, nil, fmt.Errorf("%w: animal %s", store.ErrNotFound, consultation.AnimalID)
	}

	ids := make([]string, 0, len(consultation.Items))
	for _, item := range consultation.Items {
		if item.Quantity < 1 {
			return nil, nil, store.ErrInvalidTransaction
		}
		ids = append(ids, item.ProductID)
	}
	products, err := lockProducts(ctx, tx, ids)
	if err != nil {
		return nil, nil, err
	}
	for _, item := range consultation.Items {
		if p, ok := products[item.ProductID]; !ok || !p.Active {
			return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
	}

	var sale *domain.Sale
	if in.Sale != nil {
		sale, err = insertSale(ctx, tx, *in.Sale)
		if err != nil {
			return nil, nil, err
		}
		consultation.SaleID = sale.ID
	}

	if consultation.ID == "" {
		consultation.ID = xid.New("con")
	}
	if consultation.CreatedAt.IsZero() {
		consultation.CreatedAt = time.Now().UTC()
	}
	if consultation.ConsultedAt.IsZero() {
		consultation.ConsultedAt = consultation.CreatedAt
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO consultations (
			id, animal_id, consulted_at, reason, diagnosis, treatment, observations, sale_id, user_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, consultation.ID, consultation.AnimalID, consultation.ConsultedAt, consultation.Reason, consultation.Diagnosis,
		consultation.Treatment, consultation.Observations, nullIfEmpty(consultation.SaleID), nullIfEmpty(consultation.UserID),
		consultation.CreatedAt)
	if err != nil {
		return nil, nil, err
	}
	for i, item := range consultation.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO consultation_items (id, consultation_id, line_no, product_id, product_name, quantity, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, xid.New("ci"), consultation.ID, i, item.ProductID, products[item.ProductID].Name, item.Quantity, item.Notes)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	created, err := s.GetConsultation(ctx, consultation.ID)
	if err != nil {
		return nil, nil, err
	}
	if sale != nil {
		if sale, err = s.GetSale(ctx, sale.ID); err != nil {
			return nil, nil, err
		}
	}
	return created, sale, nil
}

func (s *Store) GetConsultation(ctx context.Context, id string) (*domain.Consultation, error) {
	var consultation domain.Consultation
	if err := s.db.GetContext(ctx, &consultation, consultationSelect+` WHERE c.id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	list := []domain.Consultation{consultation}
	if err := attachConsultationItems(ctx, s.db, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *Store) GetConsultationBySale(ctx context.Context, saleID string) (*domain.Consultation, error) {
	var consultation domain.Consultation
	if err := s.db.GetContext(ctx, &consultation, consultationSelect+` WHERE c.sale_id = $1`, saleID); err != nil {
		return nil, notFound(err)
	}
	list := []domain.Consultation{consultation}
	if err := attachConsultationItems(ctx, s.db, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *Store) ListConsultationsByAnimal(ctx context.Context, animalID string) ([]domain.Consultation, error) {
	list := make([]domain.Consultation, 0, 8)
	err := s.db.SelectContext(ctx, &list, consultationSelect+`
		WHERE c.animal_id = $1
		ORDER BY c.consulted_at DESC, c.id DESC
	`, animalID)
	if err != nil {
		return nil, err
	}
	if err := attachConsultationItems(ctx, s.db, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) BillConsultation(ctx context.Context, consultationID string, in store.NewSale) (*domain.Sale, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var saleID sql.NullString
	err = tx.GetContext(ctx, &saleID, `SELECT sale_id FROM consultations WHERE id = $1 FOR UPDATE`, consultationID)
	if err != nil {
		return nil, notFound(err)
	}
	if saleID.Valid {
		return nil, fmt.Errorf("%w: consultation already billed", store.ErrConflict)
	}

	sale, err := insertSale(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE consultations SET sale_id = $2 WHERE id = $1`, consultationID, sale.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, sale.ID)
}

func (s *Store) ListPendingConsultations(ctx context.Context, query string, limit int) ([]domain.Consultation, error) {
	var w where
	w.add("c.sale_id IS NULL")
	w.add("EXISTS (SELECT 1 FROM consultation_items ci WHERE ci.consultation_id = c.id)")
	if folded := store.Fold(query); folded != "" {
		pattern := likePattern(folded)
		w.add("(c.id = ? OR "+foldSQL("a.name")+" LIKE ? OR "+foldSQL("a.owner_name")+" LIKE ?)", strings.TrimSpace(query), pattern, pattern)
	}
	sqlText := consultationSelect + w.sql() + ` ORDER BY c.consulted_at DESC, c.id DESC`
	if limit > 0 {
		sqlText += fmt.Sprintf(" LIMIT %d", limit)
	}
	list := make([]domain.Consultation, 0, 16)
	if err := s.db.SelectContext(ctx, &list, sqlText, w.args...); err != nil {
		return nil, err
	}
	if err := attachConsultationItems(ctx, s.db, list); err != nil {
		return nil, err
	}
	return list, nil
}

func attachConsultationItems(ctx context.Context, q sqlx.QueryerContext, list []domain.Consultation) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	items := make([]domain.ConsultationItem, 0, len(list)*2)
	err := sqlx.SelectContext(ctx, q, &items, `
		SELECT id, consultation_id, product_id, product_name, quantity, notes
		FROM consultation_items
		WHERE consultation_id = ANY($1)
		ORDER BY consultation_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	byConsultation := make(map[string][]domain.ConsultationItem, len(list))
	for _, item := range items {
		byConsultation[item.ConsultationID] = append(byConsultation[item.ConsultationID], item)
	}
	for i := range list {
		list[i].Items = byConsultation[list[i].ID]
		if list[i].Items == nil {
			list[i].Items = []domain.ConsultationItem{}
		}
	}
	return nil
}
