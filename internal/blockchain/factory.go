package blockchain

import (
	"fmt"
	"strings"

	"github.com/core-coin/pactum/internal/config"
	"github.com/core-coin/pactum/internal/explorer"
	"github.com/core-coin/pactum/internal/models"
	"github.com/core-coin/pactum/pkg/logger"
)

// NewVerifiers builds one verifier per enabled network.
func NewVerifiers(cfg *config.Config, log *logger.Logger) ([]models.NetworkVerifier, error) {
	var verifiers []models.NetworkVerifier
	for _, network := range models.Networks {
		nc := cfg.Network(network)
		if nc == nil {
			log.Infow("Network disabled, no deposit address configured", "network", network)
			continue
		}

		token := TokenConfig{
			Contract:         nc.TokenContract,
			Decimals:         nc.TokenDecimals,
			MinConfirmations: nc.MinConfirmations,
			FreshnessWindow:  cfg.FreshnessWindow,
			PageSize:         cfg.ScanPageSize,
		}

		if network == models.NetworkTRC20 {
			client := explorer.NewClient(explorer.Config{
				Name:         "tronscan",
				BaseURL:      strings.TrimRight(nc.ExplorerURL, "/"),
				APIKeyHeader: "TRON-PRO-API-KEY",
				APIKey:       nc.APIKey,
				Timeout:      cfg.ExplorerTimeout,
				RPS:          cfg.ExplorerRPS,
			}, log)
			verifiers = append(verifiers, NewTronVerifier(client, token, log))
			continue
		}

		base, path, err := explorer.SplitURL(nc.ExplorerURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", network, err)
		}
		client := explorer.NewClient(explorer.Config{
			Name:    string(network) + "-scan",
			BaseURL: base,
			Timeout: cfg.ExplorerTimeout,
			RPS:     cfg.ExplorerRPS,
		}, log)
		verifiers = append(verifiers, NewEVMVerifier(network, client, path, nc.APIKey, token, log))
	}
	return verifiers, nil
}
