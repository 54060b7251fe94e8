package config

import (
	"fmt"

	supa "github.com/supabase-community/supabase-go"
)

// NewSupabase initializes the Supabase client from the loaded configuration.
func NewSupabase(cfg *Config) (*supa.Client, error) {
	client, err := supa.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing Supabase client: %w", err)
	}
	return client, nil
}
