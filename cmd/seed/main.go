package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/vidasaude/telehealth-core/internal/appointment"
	"github.com/vidasaude/telehealth-core/internal/auth"
	"github.com/vidasaude/telehealth-core/internal/config"
	"github.com/vidasaude/telehealth-core/internal/db"
	"github.com/vidasaude/telehealth-core/pkg/logger"
)

const (
	doctorCount  = 20
	patientCount = 500
	batchSize    = 100
	tokenTTL     = 7 * 24 * time.Hour
)

var plans = []string{
	appointment.PlanFree,
	appointment.PlanBasic,
	appointment.PlanPremium,
	appointment.PlanUltra,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logger.Init(cfg.LogLevel, "console")
	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2, ApplicationName: "telehealth-seed"})
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	admin, err := seedUsers(ctx, pool, auth.RoleAdmin, 1)
	if err != nil {
		log.Fatal().Err(err).Msg("seed admin")
	}
	doctors, err := seedUsers(ctx, pool, auth.RoleDoctor, doctorCount)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	patients, err := seedUsers(ctx, pool, auth.RolePatient, patientCount)
	if err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")

	if !cfg.IsDev() {
		return
	}

	// Development tokens for the first user of each role.
	signer := auth.NewTokenSigner(cfg.JWTSecret, time.Now)
	for _, group := range [][]auth.Identity{admin, doctors, patients} {
		if len(group) == 0 {
			continue
		}
		token, err := signer.Sign(group[0], tokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("sign dev token")
		}
		fmt.Printf("%-8s id=%-5d %s\n", group[0].Role, group[0].ID, token)
	}
}

// seedUsers inserts count users with the given role in batches. Users whose
// email or username already exist are skipped.
func seedUsers(ctx context.Context, pool *pgxpool.Pool, role auth.Role, count int) ([]auth.Identity, error) {
	log.Info().Str("role", string(role)).Int("count", count).Msg("seeding users")

	var out []auth.Identity
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id, err := insertUser(ctx, tx, role)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			out = append(out, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		log.Debug().Str("role", string(role)).Int("seeded", end).Int("total", count).Msg("batch committed")
	}
	return out, nil
}

func insertUser(ctx context.Context, tx pgx.Tx, role auth.Role) (auth.Identity, error) {
	first, last := gofakeit.FirstName(), gofakeit.LastName()
	id := auth.Identity{
		Role:     role,
		Name:     first + " " + last,
		Username: strings.ToLower(fmt.Sprintf("%s.%s%d", first, last, gofakeit.Number(1, 9999))),
	}
	id.Email = id.Username + "@" + gofakeit.DomainName()

	plan := appointment.PlanFree
	var customer *string
	if role == auth.RolePatient {
		plan = plans[gofakeit.Number(0, len(plans)-1)]
		c := "cus_" + gofakeit.LetterN(14)
		customer = &c
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO users (email, username, full_name, role, plan, stripe_customer_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
		RETURNING id
	`, id.Email, id.Username, id.Name, string(role), plan, customer).Scan(&id.ID)
	return id, err
}
