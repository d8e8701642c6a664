// Command partner_seed creates a partner profile for local development and
// prints bearer tokens for its owner and for a paying user.
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tapdeal/internal/config"
	"tapdeal/internal/models"
	"tapdeal/internal/repositories"
	"tapdeal/internal/utils"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const tokenTTL = 24 * time.Hour

func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	config.InitLogger(cfg.LogLevel, false)

	ownerID := uint(config.GetIntEnv("PARTNER_OWNER_USER_ID", 1))
	payerID := uint(config.GetIntEnv("PAYER_USER_ID", 2))
	if ownerID == 0 || payerID == 0 || ownerID == payerID {
		log.Fatal().Msg("PARTNER_OWNER_USER_ID and PAYER_USER_ID must be distinct and non-zero")
	}

	db, err := repositories.InitDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer repositories.Close(db)
	store := repositories.NewStore(db)

	ctx := context.Background()
	p, err := store.Partners().GetByOwner(ctx, ownerID)
	switch {
	case err == nil:
		log.Info().Uint("partner_id", p.ID).Msg("partner already exists")
	case errors.Is(err, repositories.ErrNotFound):
		p = &models.Partner{
			OwnerUserID:  ownerID,
			BusinessName: config.GetEnv("PARTNER_NAME", "Demo Cafe"),
			Category:     config.GetEnv("PARTNER_CATEGORY", "food"),
			IsActive:     true,
			DiscountRate: config.GetDecimalEnv("PARTNER_DISCOUNT_RATE", decimal.NewFromInt(10)),
		}
		if err := store.Partners().Create(ctx, p); err != nil {
			log.Fatal().Err(err).Msg("failed to create partner")
		}
		log.Info().Uint("partner_id", p.ID).Str("business_name", p.BusinessName).Msg("✅ partner created")
	default:
		log.Fatal().Err(err).Msg("failed to look up partner")
	}

	partnerToken, err := utils.GenerateToken(cfg.JWTSecret, models.UserClaims{UserID: ownerID, Role: models.RolePartner}, tokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign partner token")
	}
	payerToken, err := utils.GenerateToken(cfg.JWTSecret, models.UserClaims{UserID: payerID, Role: models.RoleUser}, tokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign payer token")
	}

	fmt.Printf("PARTNER_ID=%d\nPARTNER_TOKEN=%s\nPAYER_TOKEN=%s\n", p.ID, partnerToken, payerToken)
}
