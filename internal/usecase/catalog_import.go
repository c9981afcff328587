package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/phenrril/kitehouse/internal/domain"
)

// CatalogRow is one spreadsheet row. Rows sharing a product name build one
// product; rows with a SKU or variant name add a variant to it.
type CatalogRow struct {
	Line         int
	Category     string
	Name         string
	Description  string
	Price        decimal.Decimal
	Stock        int
	ImageURL     string
	SKU          string
	VariantName  string
	Attributes   domain.Attributes
	VariantPrice decimal.Decimal
	VariantStock int
}

type ImportReport struct {
	Products   int      `json:"products"`
	Variants   int      `json:"variants"`
	Categories int      `json:"categories"`
	Skipped    []string `json:"skipped"`
}

// ImportCatalog creates the products described by rows. Products whose name
// already exists in the catalog are skipped, never overwritten.
func (uc *ProductUC) ImportCatalog(ctx context.Context, rows []CatalogRow) (*ImportReport, error) {
	rep := &ImportReport{Skipped: []string{}}
	type group struct {
		first CatalogRow
		rows  []CatalogRow
	}
	var order []string
	groups := map[string]*group{}
	for _, r := range rows {
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			rep.Skipped = append(rep.Skipped, fmt.Sprintf("row %d: missing product name", r.Line))
			continue
		}
		key := strings.ToLower(r.Name)
		g, ok := groups[key]
		if !ok {
			g = &group{first: r}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, r)
	}

	categories := map[string]uuid.UUID{}
	for _, key := range order {
		g := groups[key]
		exists, err := uc.productExists(ctx, g.first.Name)
		if err != nil {
			return nil, err
		}
		if exists {
			rep.Skipped = append(rep.Skipped, fmt.Sprintf("row %d: product %q already exists", g.first.Line, g.first.Name))
			continue
		}
		in := ProductInput{
			Name:        g.first.Name,
			Description: g.first.Description,
			Price:       g.first.Price,
			Stock:       g.first.Stock,
			ImageURL:    g.first.ImageURL,
		}
		if name := strings.TrimSpace(g.first.Category); name != "" {
			id, created, err := uc.categoryID(ctx, categories, name)
			if errors.Is(err, domain.ErrValidation) {
				rep.Skipped = append(rep.Skipped, fmt.Sprintf("row %d: %v", g.first.Line, err))
				continue
			}
			if err != nil {
				return nil, err
			}
			if created {
				rep.Categories++
			}
			in.CategoryID = &id
		}
		for _, r := range g.rows {
			if strings.TrimSpace(r.SKU) == "" && strings.TrimSpace(r.VariantName) == "" && len(r.Attributes) == 0 {
				continue
			}
			price := r.VariantPrice
			if price.IsZero() {
				price = in.Price
			}
			in.Variants = append(in.Variants, domain.Variant{
				SKU:        r.SKU,
				Name:       r.VariantName,
				Attributes: r.Attributes,
				Price:      price,
				Stock:      r.VariantStock,
			})
		}
		p, err := uc.Create(ctx, in)
		if errors.Is(err, domain.ErrValidation) {
			rep.Skipped = append(rep.Skipped, fmt.Sprintf("row %d: %v", g.first.Line, err))
			continue
		}
		if err != nil {
			return nil, err
		}
		rep.Products++
		rep.Variants += len(p.Variants)
	}
	zerolog.Ctx(ctx).Info().Int("products", rep.Products).Int("variants", rep.Variants).Int("skipped", len(rep.Skipped)).Msg("catalog import")
	return rep, nil
}

func (uc *ProductUC) productExists(ctx context.Context, name string) (bool, error) {
	q := name
	if len(q) > maxSearchLen {
		q = q[:maxSearchLen]
	}
	list, _, err := uc.Products.List(ctx, domain.ProductFilter{Query: q, Page: domain.Page{Page: 1, Limit: domain.MaxPageLimit}})
	if err != nil {
		return false, err
	}
	for _, p := range list {
		if strings.EqualFold(p.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (uc *ProductUC) categoryID(ctx context.Context, seen map[string]uuid.UUID, name string) (uuid.UUID, bool, error) {
	key := strings.ToLower(name)
	if id, ok := seen[key]; ok {
		return id, false, nil
	}
	c, err := uc.Categories.FindByName(ctx, name)
	if err == nil {
		seen[key] = c.ID
		return c.ID, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return uuid.Nil, false, err
	}
	c, err = uc.CreateCategory(ctx, name, "")
	if err != nil {
		return uuid.Nil, false, err
	}
	seen[key] = c.ID
	return c.ID, true, nil
}
