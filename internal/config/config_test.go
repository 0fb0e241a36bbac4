package config

import (
	"testing"
	"time"

	"github.com/Sternrassler/azdo-client/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AZDO_ORG_URL", "https://dev.azure.com/contoso/")
	t.Setenv("AZDO_PAT", "pat-value")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://dev.azure.com/contoso", c.OrgURL)
	assert.Equal(t, "7.1", c.APIVersion)
	assert.Equal(t, 200, c.MaxRequestsPerWindow)
	assert.Equal(t, 60*time.Second, c.RateWindow)
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, time.Second, c.BaseBackoff)
	assert.Equal(t, 5*time.Second, c.RateLimitDelay)
	assert.Equal(t, 200, c.MaxIDsPerBatch)
	assert.Equal(t, 1, c.Concurrency)
	assert.Equal(t, 30*time.Second, c.CallTimeout)
	assert.Equal(t, "127.0.0.1:8080", c.ProxyAddr)
	assert.Equal(t, "info", c.LogLevel)
	assert.Empty(t, c.RedisAddr)
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AZDO_PROJECT", "Fabrikam")
	t.Setenv("AZDO_MAX_REQUESTS_PER_WINDOW", "50")
	t.Setenv("AZDO_RATE_WINDOW", "10s")
	t.Setenv("AZDO_MAX_RETRIES", "0")
	t.Setenv("AZDO_CONCURRENCY", "2")
	t.Setenv("AZDO_REDIS_ADDR", "localhost:6379")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Fabrikam", c.Project)
	assert.Equal(t, 0, c.MaxRetries)

	cc := c.Client("azdo-bridge/test")
	assert.Equal(t, 50, cc.MaxRequestsPerWindow)
	assert.Equal(t, 10*time.Second, cc.WindowDuration)
	assert.Equal(t, 2, cc.Concurrency)
	assert.Equal(t, "azdo-bridge/test", cc.UserAgent)
	assert.NoError(t, cc.Validate())
}

func TestLoad_MissingOrgURL(t *testing.T) {
	t.Setenv("AZDO_ORG_URL", "")
	t.Setenv("AZDO_PAT", "pat")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AZDO_RATE_WINDOW", "a minute")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		OrgURL:               "https://dev.azure.com/contoso",
		PAT:                  "pat",
		AuthScheme:           "basic",
		MaxRequestsPerWindow: 200,
		RateWindow:           time.Minute,
		MaxRetries:           3,
		BaseBackoff:          time.Second,
		MaxBackoff:           30 * time.Second,
		RateLimitDelay:       5 * time.Second,
		MaxIDsPerBatch:       200,
		Concurrency:          1,
		CallTimeout:          30 * time.Second,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative url", func(c *Config) { c.OrgURL = "contoso" }, "AZDO_ORG_URL"},
		{"no credential", func(c *Config) { c.PAT = "" }, "AZDO_PAT"},
		{"bad scheme", func(c *Config) { c.AuthScheme = "kerberos" }, "AZDO_AUTH_SCHEME"},
		{"zero window max", func(c *Config) { c.MaxRequestsPerWindow = 0 }, "AZDO_MAX_REQUESTS_PER_WINDOW"},
		{"negative window", func(c *Config) { c.RateWindow = -time.Second }, "AZDO_RATE_WINDOW"},
		{"zero batch", func(c *Config) { c.MaxIDsPerBatch = 0 }, "AZDO_MAX_IDS_PER_BATCH"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "AZDO_CONCURRENCY"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "AZDO_MAX_RETRIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	tokenFile := valid
	tokenFile.PAT = ""
	tokenFile.TokenFile = "/run/secrets/azdo"
	assert.NoError(t, tokenFile.Validate())
}

func TestTokenSource(t *testing.T) {
	c := Config{PAT: "pat", AuthScheme: "basic"}
	scheme, src, err := c.TokenSource()
	require.NoError(t, err)
	assert.Equal(t, auth.SchemeBasic, scheme)
	assert.Equal(t, auth.EnvToken("AZDO_PAT"), src)

	c.TokenFile = "/tmp/token"
	c.AuthScheme = "bearer"
	scheme, src, err = c.TokenSource()
	require.NoError(t, err)
	assert.Equal(t, auth.SchemeBearer, scheme)
	assert.Equal(t, auth.FileToken("/tmp/token"), src)
}

func TestOrganization(t *testing.T) {
	tests := map[string]string{
		"https://dev.azure.com/contoso":       "contoso",
		"https://dev.azure.com/contoso/":      "contoso",
		"https://contoso.visualstudio.com":    "contoso",
		"https://tfs.example.com/tfs/Default": "Default",
	}
	for in, want := range tests {
		assert.Equal(t, want, Config{OrgURL: in}.Organization(), in)
	}
}

func TestLogging(t *testing.T) {
	c := Config{LogLevel: "DEBUG", LogPretty: true}
	lc := c.Logging()
	assert.Equal(t, "debug", string(lc.Level))
	assert.True(t, lc.Pretty)
}
