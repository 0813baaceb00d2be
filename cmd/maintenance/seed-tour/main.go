package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/guidedtours/reservation-backend/internal/config"
	"github.com/guidedtours/reservation-backend/internal/database"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/joho/godotenv"
)

func main() {
	var (
		dbURLFlag  string
		name       string
		capacity   int
		price      string
		childPrice string
		currency   string
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&name, "name", "", "tour name")
	flag.IntVar(&capacity, "capacity", 0, "seats per tour date")
	flag.StringVar(&price, "price", "", "adult price, e.g. 45.00")
	flag.StringVar(&childPrice, "child-price", "", "child price (defaults to the adult price)")
	flag.StringVar(&currency, "currency", "USD", "ISO currency code")
	flag.Parse()

	_ = godotenv.Load()

	if name == "" || capacity < 1 || price == "" {
		flag.Usage()
		os.Exit(2)
	}

	adult, err := models.ParseMoney(price)
	if err != nil {
		log.Fatalf("invalid -price: %v", err)
	}
	var child models.Money
	if childPrice != "" {
		if child, err = models.ParseMoney(childPrice); err != nil {
			log.Fatalf("invalid -child-price: %v", err)
		}
	}

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	tour := &models.Tour{
		Name:       name,
		Capacity:   capacity,
		Price:      adult,
		ChildPrice: child,
		Currency:   currency,
		Status:     models.TourStatusActive,
	}
	if err := database.NewTourRepository(db).CreateTour(context.Background(), tour); err != nil {
		log.Fatalf("failed to seed tour: %v", err)
	}

	fmt.Printf("Tour created: %s (%s, %d seats, %s %s)\n", tour.ID, tour.Name, tour.Capacity, tour.Price, tour.Currency)
}
