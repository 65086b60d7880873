package main

import (
	"fmt"
	"time"

	"github.com/converso/gateway/internal/auth"
	"github.com/converso/gateway/internal/config"
)

// runToken mints a signed API token for the given tenant, valid for the
// configured jwt_expires_in window.
func runToken(tenantID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return fmt.Errorf("parse jwt_expires_in: %w", err)
	}
	signed, expiresAt, err := auth.GenerateToken(tenantID, cfg.Auth.JWTSecret, expiresIn)
	if err != nil {
		return err
	}
	fmt.Println(signed)
	fmt.Printf("expires: %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
