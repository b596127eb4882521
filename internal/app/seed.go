package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/transport/grpcstore"
)

// demoMenu — небольшое меню для локального запуска (BAR_SEED_DEMO).
func demoMenu() []domain.MenuItem {
	return []domain.MenuItem{
		{ID: "beer-lager", Name: "Lager", Description: "0.5 l draught", PriceMinor: 1000, Category: domain.CategoryBeers, Available: true},
		{ID: "beer-ipa", Name: "IPA", Description: "0.5 l draught", PriceMinor: 1200, Category: domain.CategoryBeers, Available: true},
		{ID: "shot-tequila", Name: "Tequila", PriceMinor: 700, Category: domain.CategoryShots, Available: true},
		{ID: "cocktail-negroni", Name: "Negroni", PriceMinor: 2500, Category: domain.CategoryCocktails, Available: true},
		{ID: "cocktail-mojito", Name: "Mojito", PriceMinor: 2200, Category: domain.CategoryCocktails, Available: false},
		{ID: "food-nachos", Name: "Nachos", Description: "cheese and jalapeño", PriceMinor: 1800, Category: domain.CategoryFood, Available: true},
		{ID: "soft-lemonade", Name: "Lemonade", PriceMinor: 600, Category: domain.CategoryNonAlcoholic, Available: true},
	}
}

// seedDemo заполняет пустое хранилище демо-данными. Повторный запуск только обновляет строки.
func seedDemo(ctx context.Context, repos grpcstore.Repositories, logger *log.Entry) error {
	for _, item := range demoMenu() {
		if err := repos.Menu.SaveMenuItem(ctx, item); err != nil {
			return fmt.Errorf("seed menu item %s: %w", item.ID, err)
		}
	}

	battles, err := repos.Battles.ListActiveBattles(ctx)
	if err != nil {
		return fmt.Errorf("seed battle: %w", err)
	}
	if len(battles) == 0 {
		battle := domain.GenreBattle{ID: "battle-demo", GenreA: "Rock", GenreB: "Disco", Active: true}
		if err := repos.Battles.CreateBattle(ctx, battle); err != nil {
			return fmt.Errorf("seed battle: %w", err)
		}
	}

	logger.WithField("menu_items", len(demoMenu())).Info("demo data seeded")
	return nil
}
