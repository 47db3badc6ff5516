package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"onboard-backend/internal/schema"
)

// Bootstrap creates every table in the registry from its descriptor, adds
// unique indexes for the descriptors' unique sets, and seeds a first
// superadmin user. Idempotent.
func (s *Store) Bootstrap(ctx context.Context, reg *schema.Registry, passwordSalt string) error {
	for _, t := range reg.All() {
		if _, err := s.Pool.Exec(ctx, createTableSQL(t)); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
		for i, set := range t.UniqueSets {
			idx := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS uq_%s_%d ON %s (%s)",
				t.Name, i, t.Name, strings.Join(set, ", "))
			if _, err := s.Pool.Exec(ctx, idx); err != nil {
				return fmt.Errorf("create index on %s: %w", t.Name, err)
			}
		}
	}

	if err := s.seedSuperadmin(ctx, passwordSalt); err != nil {
		return fmt.Errorf("seed superadmin: %w", err)
	}
	return nil
}

func createTableSQL(t *schema.Table) string {
	var cols []string
	for _, c := range t.Columns {
		if c.Name == "id" {
			cols = append(cols, "id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY")
			continue
		}
		cols = append(cols, fmt.Sprintf("%s %s", c.Name, c.Type.PostgresType()))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		t.Name, strings.Join(cols, ",\n    "))
}

func (s *Store) seedSuperadmin(ctx context.Context, salt string) error {
	var count int
	if err := s.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(salt+"changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.Pool.Exec(ctx,
		`INSERT INTO users (username, email, passwordhash, role, profileid, active, countryid, createdby, updatedby, createdate, updatedate)
		 VALUES ($1, $2, $3, $4, 0, TRUE, 0, 0, 0, NOW(), NOW())`,
		"superadmin", "admin@localhost", string(hash), "superadmin")
	if err != nil {
		return err
	}

	log.Println("WARNING: Default superadmin created (admin@localhost / changeme). Change the password immediately.")
	return nil
}
