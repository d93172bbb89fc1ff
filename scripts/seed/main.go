package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kiosk-inventory/internal/app"
	"github.com/odyssey-erp/kiosk-inventory/internal/catalog"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db"
)

// Seeds a demo kiosk. Opening balances go through the catalog service so
// every counter starts with an INITIAL ledger row. Rerunning skips rows whose
// code already exists.
func main() {
	_ = godotenv.Load()
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{LockTimeout: cfg.PGLockTimeout})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc := app.NewServices(cfg, pool, nil, nil, logger).Catalog

	fmt.Println("→ Seeding vendors...")
	if err := seedVendors(ctx, svc); err != nil {
		log.Fatalf("seed vendors: %v", err)
	}
	fmt.Println("→ Seeding products...")
	if err := seedProducts(ctx, svc); err != nil {
		log.Fatalf("seed products: %v", err)
	}
	fmt.Println("→ Seeding air-conditioner units...")
	if err := seedAircon(ctx, svc); err != nil {
		log.Fatalf("seed aircon: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func skipExisting(err error) error {
	if errors.Is(err, catalog.ErrDuplicateCode) {
		return nil
	}
	return err
}

func seedVendors(ctx context.Context, svc *catalog.Service) error {
	vendors := []struct {
		input catalog.VendorInput
		users []string
	}{
		{catalog.VendorInput{Code: "V-ELEC", Name: "Kanto Electric Works", PriceTier: 1}, []string{"Sato", "Suzuki"}},
		{catalog.VendorInput{Code: "V-AIR", Name: "Minami Aircon Service", PriceTier: 2}, []string{"Tanaka"}},
	}
	for _, v := range vendors {
		created, err := svc.CreateVendor(ctx, v.input)
		if err != nil {
			if err := skipExisting(err); err != nil {
				return err
			}
			continue
		}
		for _, name := range v.users {
			if _, err := svc.AddVendorUser(ctx, created.ID, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedProducts(ctx context.Context, svc *catalog.Service) error {
	products := []catalog.ProductInput{
		{Code: "VVF-2.0", Name: "VVF cable 2.0mm", Category: "cable", Unit: catalog.UnitMeter, Price: decimal.RequireFromString("120"), MinStock: 100, InitialStock: 500},
		{Code: "SADDLE", Name: "Cable saddle", Category: "fixing", Unit: catalog.UnitBox, QtyPerBox: 10, Price: decimal.RequireFromString("15"),
			Price2: decimal.NewNullDecimal(decimal.RequireFromString("12")), MinStock: 50, InitialStock: 200},
		{Code: "TAPE-BK", Name: "Insulation tape black", Category: "consumable", Unit: catalog.UnitRoll, Price: decimal.RequireFromString("80"), MinStock: 20, InitialStock: 60},
	}
	for _, p := range products {
		if _, err := svc.CreateProduct(ctx, p); err != nil {
			if err := skipExisting(err); err != nil {
				return fmt.Errorf("%s: %w", p.Code, err)
			}
		}
	}
	return nil
}

func seedAircon(ctx context.Context, svc *catalog.Service) error {
	units := []struct {
		input catalog.AirconUnitInput
		model string
	}{
		{catalog.AirconUnitInput{Code: "RAS-22", Capacity: "2.2kW", YearSuffix: "TX", MinStock: 1, InitialStock: 4}, "RAS-2210TX"},
		{catalog.AirconUnitInput{Code: "RAS-28", Capacity: "2.8kW", YearSuffix: "TX", MinStock: 1, InitialStock: 2}, "RAS-2810TX"},
	}
	for _, u := range units {
		created, err := svc.CreateAirconUnit(ctx, u.input)
		if err != nil {
			if err := skipExisting(err); err != nil {
				return fmt.Errorf("%s: %w", u.input.Code, err)
			}
			continue
		}
		if _, err := svc.MapModel(ctx, u.model, created.ID, 0); err != nil {
			return fmt.Errorf("map %s: %w", u.model, err)
		}
	}
	return nil
}
