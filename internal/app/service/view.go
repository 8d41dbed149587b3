package service

import (
	"slices"
	"strings"

	"github.com/mrops-br/offline-catalog/internal/domain"
	"golang.org/x/text/cases"
)

// filterCriteria are the user-controlled inputs to the derived view
type filterCriteria struct {
	searchText    string
	favoritesOnly bool
	sortMode      domain.SortMode
}

// buildView applies search, then the favorites filter, then the sort.
// The input slice is never modified.
func buildView(products []domain.Product, criteria filterCriteria) []domain.Product {
	view := make([]domain.Product, 0, len(products))

	fold := cases.Fold()
	needle := fold.String(criteria.searchText)

	for _, p := range products {
		if needle != "" &&
			!strings.Contains(fold.String(p.Name), needle) &&
			!strings.Contains(fold.String(p.Category), needle) {
			continue
		}
		if criteria.favoritesOnly && !p.IsFavorite {
			continue
		}
		view = append(view, p)
	}

	sortProducts(view, criteria.sortMode)
	return view
}

// sortProducts orders products in place. Price modes compare price only;
// the default puts favorites first, then orders by name.
func sortProducts(products []domain.Product, mode domain.SortMode) {
	switch mode {
	case domain.SortPriceAscending:
		slices.SortStableFunc(products, func(a, b domain.Product) int {
			return a.Price.Cmp(b.Price)
		})
	case domain.SortPriceDescending:
		slices.SortStableFunc(products, func(a, b domain.Product) int {
			return b.Price.Cmp(a.Price)
		})
	default:
		slices.SortStableFunc(products, func(a, b domain.Product) int {
			if a.IsFavorite != b.IsFavorite {
				if a.IsFavorite {
					return -1
				}
				return 1
			}
			return strings.Compare(a.Name, b.Name)
		})
	}
}

// overlayFavorites sets each product's flag from the persisted set
func overlayFavorites(products []domain.Product, favorites domain.FavoriteSet) {
	for i := range products {
		products[i].IsFavorite = favorites.IsFavorite(products[i].PersistentID())
	}
}
