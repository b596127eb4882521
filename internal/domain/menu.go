package domain

import "time"

// Category описывает раздел меню бара.
type Category string

const (
	CategoryBeers        Category = "beers"
	CategoryCocktails    Category = "cocktails"
	CategoryShots        Category = "shots"
	CategoryFood         Category = "food"
	CategoryNonAlcoholic Category = "non_alcoholic"
)

// Categories возвращает разделы меню в порядке отображения.
func Categories() []Category {
	return []Category{
		CategoryBeers,
		CategoryShots,
		CategoryCocktails,
		CategoryFood,
		CategoryNonAlcoholic,
	}
}

// Valid проверяет, что категория относится к поддерживаемым значениям.
func (c Category) Valid() bool {
	switch c {
	case CategoryBeers, CategoryCocktails, CategoryShots, CategoryFood, CategoryNonAlcoholic:
		return true
	default:
		return false
	}
}

// MenuItem — позиция каталога. Для клиента неизменяема, владеет ей внешний каталог.
type MenuItem struct {
	ID          string
	Name        string
	Description string
	// PriceMinor — цена в минимальных денежных единицах, всегда неотрицательная.
	PriceMinor int64
	Category   Category
	ImageURL   string
	Available  bool
	CreatedAt  time.Time
}

// Validate проверяет поля позиции каталога.
func (m MenuItem) Validate() []error {
	var errs []error
	if m.ID == "" {
		errs = append(errs, ErrMenuItemIDRequired)
	}
	if m.PriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}
	if !m.Category.Valid() {
		errs = append(errs, ErrCategoryInvalid)
	}
	return errs
}
