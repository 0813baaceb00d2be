package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/pkg/jwt"
	"github.com/joho/godotenv"
)

// Issues a staff token signed with JWT_SECRET. For local testing of the
// gate scanner; production tokens come from the identity service.
func main() {
	var (
		name   string
		roles  string
		expiry time.Duration
	)
	flag.StringVar(&name, "name", "Local Gate", "staff display name")
	flag.StringVar(&roles, "roles", jwt.RoleStaff, "comma separated roles (staff, admin)")
	flag.DurationVar(&expiry, "expiry", 8*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	var roleList []string
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}

	staffID := uuid.New()
	token, err := jwt.NewService(secret, expiry).GenerateAccessToken(staffID, name, roleList)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}

	fmt.Printf("staff_id: %s\n", staffID)
	fmt.Printf("expires:  %s\n", time.Now().Add(expiry).Format(time.RFC3339))
	fmt.Println(token)
}
