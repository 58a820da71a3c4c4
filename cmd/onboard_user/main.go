package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/sreeduggirala/polytrade/config"
	"github.com/sreeduggirala/polytrade/internal/adapters/logger"
	"github.com/sreeduggirala/polytrade/internal/adapters/sqlite"
	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/points"
	"github.com/sreeduggirala/polytrade/internal/referral"
	"github.com/sreeduggirala/polytrade/internal/utils"
)

// Registers a user wallet in the local database, generating a referral code
// and optionally crediting the referrer's signup bonus. For a user that is
// already onboarded, -code and -settings update the existing wallet instead.
func main() {
	userID := flag.String("user", "", "stable user identifier (required)")
	handle := flag.String("handle", "", "display handle")
	address := flag.String("address", "", "on-chain wallet address (required for new users)")
	credentialRef := flag.String("credential-ref", "", "opaque reference to the signing credential")
	referredBy := flag.String("referred-by", "", "referral code of the referring user")
	customCode := flag.String("code", "", "custom referral code (3-7 alphanumeric chars)")
	settings := flag.String("settings", "", "comma-separated key=value wallet settings")
	flag.Parse()

	if *userID == "" {
		flag.Usage()
		log.Fatal("FATAL: -user is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	pointsEngine, err := points.New(repo, repo, nil, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize points engine: %v", err)
	}

	settingsMap, err := parseSettings(*settings)
	if err != nil {
		log.Fatalf("FATAL: Invalid -settings: %v", err)
	}

	existing, err := repo.FindByUserID(ctx, *userID)
	if err != nil {
		log.Fatalf("FATAL: Failed to look up user: %v", err)
	}
	if existing != nil {
		updateWallet(ctx, repo, pointsEngine, *userID, *customCode, settingsMap)
		return
	}

	if *address == "" {
		flag.Usage()
		log.Fatal("FATAL: -address is required when onboarding a new user")
	}

	code := *customCode
	if code == "" {
		code, err = referral.UniqueCode(ctx, repo)
		if err != nil {
			log.Fatalf("FATAL: Failed to generate referral code: %v", err)
		}
	} else {
		code, err = referral.NormalizeCode(code)
		if err != nil {
			log.Fatalf("FATAL: Invalid custom referral code: %v", err)
		}
	}

	wallet := &domain.Wallet{
		UserID:        *userID,
		Handle:        *handle,
		Address:       utils.NormalizeAddress(*address),
		CredentialRef: *credentialRef,
		Settings:      settingsMap,
		ReferralCode:  code,
	}
	id, err := repo.CreateWallet(ctx, wallet)
	if err != nil {
		log.Fatalf("FATAL: Failed to create wallet: %v", err)
	}

	if *referredBy != "" {
		if err := pointsEngine.RegisterReferral(ctx, *userID, *referredBy); err != nil {
			log.Fatalf("FATAL: Wallet %d created but referral registration failed: %v", id, err)
		}
	}

	fmt.Printf("Onboarded user %s (wallet %d) with referral code %s\n", *userID, id, code)
}

// updateWallet applies -code and -settings to an already-onboarded user.
func updateWallet(ctx context.Context, repo *sqlite.Repository, pointsEngine *points.Engine, userID, customCode string, settingsMap map[string]string) {
	if customCode == "" && settingsMap == nil {
		log.Fatalf("FATAL: User %s is already onboarded; pass -code or -settings to update", userID)
	}
	if customCode != "" {
		code, err := pointsEngine.SetCustomCode(ctx, userID, customCode)
		if err != nil {
			log.Fatalf("FATAL: Failed to set custom referral code: %v", err)
		}
		fmt.Printf("Referral code for user %s is now %s\n", userID, code)
	}
	if settingsMap != nil {
		if err := repo.UpdateSettings(ctx, userID, settingsMap); err != nil {
			log.Fatalf("FATAL: Failed to update settings: %v", err)
		}
		fmt.Printf("Updated %d setting(s) for user %s\n", len(settingsMap), userID)
	}
}

// parseSettings turns "k=v,k2=v2" into a map; empty input yields nil.
func parseSettings(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		out[key] = value
	}
	return out, nil
}
