package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/guidedtours/reservation-backend/internal/config"
	"github.com/guidedtours/reservation-backend/internal/database"
	"github.com/joho/godotenv"
)

// tables in dependency order; tours survive unless -include-tours is set
var bookingTables = []string{
	"payment_audits",
	"ticket_redemptions",
	"transactions",
	"issued_codes",
	"bookings",
	"seat_holds",
	"inventory_ledger",
}

func main() {
	var dbURLFlag string
	var includeTours bool
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&includeTours, "include-tours", false, "also truncate the tours table")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	// Build minimal database config without loading full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	tables := bookingTables
	if includeTours {
		tables = append(tables, "tours")
	}

	fmt.Println("Connected to database. Truncating tables...")
	for _, t := range tables {
		if _, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", t)); err != nil {
			log.Fatalf("failed to truncate %s: %v", t, err)
		}
	}
	fmt.Println("All booking data cleared successfully.")

	fmt.Println("Post-clear row counts:")
	for _, t := range tables {
		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&count); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}
