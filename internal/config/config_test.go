package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_DevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRESQL_HOST", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, uint16(1000), cfg.PlatformFeeBps)
	assert.Equal(t, "10000000000000000000", cfg.AppealThreshold.String())
	assert.Equal(t, time.Minute, cfg.KeeperInterval)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, common.Address{}, cfg.AdminAddress)
	assert.Contains(t, cfg.DatabaseURL, "bounty_escrow")
}

func TestFromEnv_Lists(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ORACLE_UPDATERS", "0x00000000000000000000000000000000000000e1,0x00000000000000000000000000000000000000e2")
	t.Setenv("ROLE_GRANTS", "arbitrator:0x00000000000000000000000000000000000000a1, MODERATOR:0x00000000000000000000000000000000000000b1,ARBITRATOR:0x00000000000000000000000000000000000000a2")
	t.Setenv("PLATFORM_FEE_BPS", "250")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Len(t, cfg.OracleUpdaters, 2)
	assert.Equal(t, []common.Address{common.HexToAddress("0xa1"), common.HexToAddress("0xa2")}, cfg.RoleGrants["ARBITRATOR"])
	assert.Len(t, cfg.RoleGrants["MODERATOR"], 1)
	assert.Equal(t, uint16(250), cfg.PlatformFeeBps)
}

func TestFromEnv_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"ADMIN_ADDRESS":        "not-an-address",
		"ORACLE_UPDATERS":      "0x1234",
		"ROLE_GRANTS":          "ARBITRATOR",
		"APPEAL_THRESHOLD_WEI": "-1",
		"PLATFORM_FEE_BPS":     "70000",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("APP_ENV", "development")
			t.Setenv(key, value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_ProductionRequirements(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "short")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "CORS_ALLOWED_ORIGINS")

	t.Setenv("CORS_ALLOWED_ORIGINS", "https://escrow.example")
	t.Setenv("ADMIN_ADDRESS", "")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "ADMIN_ADDRESS")

	t.Setenv("ADMIN_ADDRESS", "0x00000000000000000000000000000000000000a0")
	t.Setenv("TREASURY_ADDRESS", "0x00000000000000000000000000000000000000a1")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://escrow.example"}, cfg.AllowedOrigins)
}

func TestGetDatabaseURL_FromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRESQL_HOST", "db")
	t.Setenv("POSTGRESQL_USER", "escrow")
	t.Setenv("POSTGRESQL_PASSWORD", "p@ss")
	t.Setenv("POSTGRESQL_DBNAME", "ledger")

	assert.Equal(t, "postgres://escrow:p%40ss@db:5432/ledger?sslmode=disable", getDatabaseURL())
}
