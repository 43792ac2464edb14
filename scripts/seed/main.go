package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"kitchenops/server/internal/config"
	"kitchenops/server/internal/database"
	"kitchenops/server/internal/events"
	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"
	"kitchenops/server/internal/services"
)

type seedIngredient struct {
	name     string
	supplier string
	category string
	unit     string
	qty      float64
	price    float64
	yield    float64
}

type seedLine struct {
	ingredient string
	qty        float64
	unit       string
}

type seedRecipe struct {
	name     string
	category string
	portions float64
	lines    []seedLine
}

var seedIngredients = []seedIngredient{
	{"Flour", "Mill & Co", "dry", "kg", 10, 20, 100},
	{"Milk", "Dairy Farm", "dairy", "l", 12, 30, 100},
	{"Eggs", "Dairy Farm", "dairy", "kg", 3, 15, 88},
	{"Butter", "Dairy Farm", "dairy", "kg", 5, 45, 100},
	{"Potatoes", "Green Valley", "vegetables", "kg", 25, 18, 80},
	{"Onions", "Green Valley", "vegetables", "kg", 20, 12, 90},
	{"Chicken breast", "Poultry Hub", "meat", "kg", 5, 40, 95},
}

var seedRecipes = []seedRecipe{
	{"Bread", "bakery", 10, []seedLine{{"Flour", 4, "kg"}, {"Butter", 200, "g"}}},
	{"Pancakes", "breakfast", 10, []seedLine{{"Flour", 1, "kg"}, {"Milk", 1.5, "l"}, {"Eggs", 600, "g"}}},
	{"Mashed potatoes", "sides", 10, []seedLine{{"Potatoes", 2.5, "kg"}, {"Milk", 300, "ml"}, {"Butter", 150, "g"}}},
	{"Chicken stew", "mains", 10, []seedLine{{"Chicken breast", 2, "kg"}, {"Onions", 800, "g"}, {"Potatoes", 1.5, "kg"}}},
}

func main() {
	log := config.GetLogger()
	if err := godotenv.Load(); err != nil {
		log.Info("ℹ️ .env file not found, using process environment")
	}
	cfg := config.Load()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PostgresOptions{MaxOpenConns: 5}, log)
	if err != nil {
		log.WithError(err).Fatal("❌ database connection failed")
	}
	defer database.ClosePostgres(db)
	if err := models.AutoMigrate(db, log); err != nil {
		log.WithError(err).Fatal("❌ migration failed")
	}

	ctx := context.Background()
	store := repository.NewGormStore(db)
	bus := events.NewMemoryBus()
	ingredientService := services.NewIngredientService(store, bus, log)
	recipeService := services.NewRecipeCostService(store, bus, log, cfg.CascadeBatchSize)
	recipeService.Subscribe(bus)
	demandService := services.NewDemandService(store, bus, log, cfg.DefaultPeopleCount)
	planService := services.NewPlanService(store, demandService, log)

	ingredientIDs := make(map[string]string)
	for _, si := range seedIngredients {
		if existing, err := store.FindIngredientByNameAndSupplier(ctx, si.name, si.supplier); err == nil {
			ingredientIDs[si.name] = existing.ID
			log.WithField("name", si.name).Info("ℹ️ ingredient already present")
			continue
		}
		yield := si.yield
		saved, err := ingredientService.SaveIngredient(ctx, &models.Ingredient{
			Name:             si.name,
			Supplier:         si.supplier,
			Category:         si.category,
			PurchaseUnit:     si.unit,
			PurchaseQuantity: si.qty,
			OriginalPrice:    si.price,
			Yield:            &yield,
		})
		if err != nil {
			log.WithError(err).WithField("name", si.name).Fatal("❌ ingredient seed failed")
		}
		ingredientIDs[si.name] = saved.ID
		log.WithFields(logrus.Fields{"name": saved.Name, "price_per_kg": saved.PricePerKg}).Info("✅ ingredient created")
	}

	seeder := services.Actor{Name: "seed", Privileged: true}
	var recipeIDs []string
	for _, sr := range seedRecipes {
		recipe := &models.Recipe{
			Name:         sr.name,
			Category:     sr.category,
			Portions:     sr.portions,
			BasePortions: sr.portions,
		}
		for i, line := range sr.lines {
			recipe.Ingredients = append(recipe.Ingredients, models.RecipeIngredient{
				IngredientID: ingredientIDs[line.ingredient],
				Position:     i,
				Quantity:     line.qty,
				BaseQuantity: line.qty,
				Unit:         line.unit,
			})
		}
		saved, err := recipeService.SaveRecipe(ctx, recipe, seeder)
		if err != nil {
			log.WithError(err).WithField("name", sr.name).Fatal("❌ recipe seed failed")
		}
		recipeIDs = append(recipeIDs, saved.ID)
		log.WithFields(logrus.Fields{"name": saved.Name, "cost_per_portion": saved.CostPerPortion}).Info("✅ recipe created")
	}

	date := "2024-05-01"
	breakfast, err := planService.SaveMenu(ctx, &models.Menu{
		Name: "Breakfast set", Date: date, Base: "north", MealType: models.MealBreakfast,
		RecipeIDs: []string{recipeIDs[0], recipeIDs[1]},
	})
	if err != nil {
		log.WithError(err).Fatal("❌ menu seed failed")
	}
	lunch, err := planService.SaveMenu(ctx, &models.Menu{
		Name: "Lunch set", Date: date, Base: "north", MealType: models.MealLunch,
		RecipeIDs: []string{recipeIDs[2], recipeIDs[3]},
	})
	if err != nil {
		log.WithError(err).Fatal("❌ menu seed failed")
	}

	result, err := planService.SavePlan(ctx, &models.Plan{
		Date:      date,
		Base:      "north",
		Breakfast: models.MealBlock{MenuID: breakfast.ID, Qty: 40},
		Lunch:     models.MealBlock{MenuID: lunch.ID, Qty: 60},
	})
	if err != nil {
		log.WithError(err).Fatal("❌ plan seed failed")
	}
	log.WithFields(logrus.Fields{
		"plan_id":      result.Plan.ID,
		"requisitions": len(result.Requisitions),
	}).Info("🎉 seed data ready")
}
