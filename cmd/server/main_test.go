package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/certificate/models"
	"certledger/internal/platform/config"
	"certledger/internal/platform/operatorauth"
	"certledger/pkg/platform/middleware/auth"
	"certledger/pkg/requestcontext"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Ledger.Driver = config.DriverMemory
	return cfg
}

func TestLoadIssuer(t *testing.T) {
	t.Run("ephemeral when unset", func(t *testing.T) {
		iss, err := loadIssuer(memoryConfig().Issuer, discardLogger())
		require.NoError(t, err)
		assert.NotEmpty(t, iss.PublicKey())
	})

	t.Run("half configured is rejected", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Issuer.Seed = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))
		_, err := loadIssuer(cfg.Issuer, discardLogger())
		require.Error(t, err)
	})

	t.Run("configured keys are deterministic", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Issuer.Seed = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))
		cfg.Issuer.CipherKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{2}, 32))
		a, err := loadIssuer(cfg.Issuer, discardLogger())
		require.NoError(t, err)
		b, err := loadIssuer(cfg.Issuer, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, a.PublicKey(), b.PublicKey())
	})
}

func TestBuildAppOverMemoryLedger(t *testing.T) {
	a, err := buildApp(memoryConfig(), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	ctx := requestcontext.WithOperator(context.Background(), "registrar")
	months := 6
	created, err := a.service.Create(ctx, &models.CreateRequest{
		HolderName:  "Ada",
		Surname:     "Lovelace",
		Competence:  "Analytical Engines",
		Identifier:  "ID-12345",
		ValidMonths: &months,
	})
	require.NoError(t, err)

	view, err := a.service.Verify(ctx, created.TransactionID)
	require.NoError(t, err)
	assert.True(t, view.Valid)

	report, err := a.service.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count)
}

func TestBuildAppWiresEveryIssuer(t *testing.T) {
	cfg := memoryConfig()
	cfg.Issuers = []config.Issuer{{ID: "north"}}
	a, err := buildApp(cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	require.Len(t, a.issuers, 2)
	assert.Equal(t, config.DefaultIssuerID, a.issuers[0].id)
	assert.Same(t, a.service, a.issuers[0].service)
	assert.Equal(t, "north", a.issuers[1].id)
	assert.NotEqual(t, a.service.IssuerPublicKey(), a.issuers[1].service.IssuerPublicKey())
	assert.Len(t, a.handlerOptions(), 2)

	ctx := requestcontext.WithOperator(context.Background(), "registrar")
	created, err := a.issuers[1].service.Create(ctx, &models.CreateRequest{
		HolderName: "Ada",
		Surname:    "Lovelace",
		Competence: "Analytical Engines",
		Identifier: "ID-12345",
	})
	require.NoError(t, err)

	// both issuers read the shared ledger
	view, err := a.service.Verify(ctx, created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.Redacted, view.Holder.Identifier)
}

func TestOpenSubstrateRejectsUnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Ledger.Driver = "sqlite"
	_, err := openSubstrate(cfg, discardLogger())
	require.Error(t, err)
}

func TestKeygenPrintsUsableMaterial(t *testing.T) {
	var out bytes.Buffer
	cmd := keygenCommand()
	cmd.SetOut(&out)
	require.NoError(t, cmd.RunE(cmd, nil))

	cfg := memoryConfig()
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if v, ok := strings.CutPrefix(line, config.EnvPrefix+"_ISSUER_SEED="); ok {
			cfg.Issuer.Seed = v
		}
		if v, ok := strings.CutPrefix(line, config.EnvPrefix+"_ISSUER_CIPHER_KEY="); ok {
			cfg.Issuer.CipherKey = v
		}
	}
	require.NoError(t, cfg.Validate())
	_, err := loadIssuer(cfg.Issuer, discardLogger())
	require.NoError(t, err)
}

func TestTokenIsAcceptedByValidator(t *testing.T) {
	cfg := memoryConfig()
	var out bytes.Buffer
	cmd := tokenCommand()
	cmd.SetOut(&out)
	cmd.SetContext(config.WithContext(context.Background(), cfg))
	require.NoError(t, cmd.Flags().Parse([]string{"--subject", "registrar", "--scopes", auth.ScopeIssue, "--json"}))
	require.NoError(t, cmd.RunE(cmd, nil))

	var got tokenOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))

	claims, err := operatorauth.New(cfg.Operator.SigningKey, cfg.Operator.TokenTTL).ValidateToken(got.Token)
	require.NoError(t, err)
	assert.Equal(t, "registrar", claims.Subject)
	assert.Equal(t, []string{auth.ScopeIssue}, claims.Scopes)
}
