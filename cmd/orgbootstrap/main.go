// Command orgbootstrap provisions a company and its owner account. It is
// idempotent: re-running with the same company id updates name, seat limit,
// and owner credentials in place.
package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"knowchat/internal/config"
	"knowchat/internal/model"
	mysqlClient "knowchat/internal/platform/mysql"
	"knowchat/internal/repository"
)

func main() {
	var (
		companyID   = flag.Uint("company-id", 0, "stable company id (required)")
		companyName = flag.String("company-name", "", "company display name (required)")
		seatLimit   = flag.Int("seat-limit", 10, "maximum member seats")
		username    = flag.String("owner-username", "", "owner login name (required)")
		email       = flag.String("owner-email", "", "owner email (required)")
		displayName = flag.String("owner-display-name", "", "owner display name (defaults to username)")
		password    = flag.String("owner-password", "", "owner password, minimum 8 characters (required)")
	)
	flag.Parse()

	if *companyID == 0 || strings.TrimSpace(*companyName) == "" ||
		strings.TrimSpace(*username) == "" || strings.TrimSpace(*email) == "" {
		flag.Usage()
		log.Fatal("company-id, company-name, owner-username, and owner-email are required")
	}
	if len(strings.TrimSpace(*password)) < 8 {
		log.Fatal("owner-password must be at least 8 characters")
	}
	if *seatLimit < 1 {
		log.Fatal("seat-limit must be at least 1")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	db, err := mysqlClient.New(context.Background(), cfg.MySQLDSN())
	if err != nil {
		log.Fatalf("connect mysql failed: %v", err)
	}
	if err := db.AutoMigrate(&model.Company{}, &model.Member{}); err != nil {
		log.Fatalf("auto migrate tables failed: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(*password)), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash password failed: %v", err)
	}

	display := strings.TrimSpace(*displayName)
	if display == "" {
		display = strings.TrimSpace(*username)
	}

	company := &model.Company{
		ID:        *companyID,
		Name:      strings.TrimSpace(*companyName),
		SeatLimit: *seatLimit,
	}
	owner := &model.Member{
		Username:     strings.TrimSpace(*username),
		Email:        strings.ToLower(strings.TrimSpace(*email)),
		DisplayName:  display,
		PasswordHash: string(hash),
	}

	companyRepo := repository.NewCompanyRepository(db)
	if err := companyRepo.BootstrapOwner(company, owner); err != nil {
		log.Fatalf("bootstrap owner failed: %v", err)
	}

	log.Printf("company %d (%s) ready, owner %s (member id %d)", company.ID, company.Name, owner.Username, owner.ID)
}
