package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 60*time.Second, cfg.Pet.DecayInterval)
	assert.Equal(t, 10*time.Second, cfg.Pet.GrowthInterval)
	assert.Equal(t, 5, cfg.Pet.DecayAmount)
	assert.Equal(t, 3, cfg.Pet.GrowthPoints)
	assert.Equal(t, "none", cfg.Tutor.Provider)
	assert.Equal(t, DefaultFallbackReply, cfg.Tutor.FallbackReply)
	assert.Equal(t, "default", cfg.Tuning.Profile)
	assert.Equal(t, 64, cfg.Tuning.ClientSendBuffer)
	assert.Equal(t, 10000, cfg.Tuning.EventRetention)
}

func TestYAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9000"
  memory: true
pet:
  initial_hunger: 40
  decay_interval: 30s
tuning:
  profile: low
  max_messages_per_second: 15
`)
	t.Setenv("VAULT_PET_DECAY_AMOUNT", "7")
	t.Setenv("VAULT_SERVER_LISTEN_ADDR", ":9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.ListenAddr, "env wins over the file")
	assert.True(t, cfg.Server.Memory)
	assert.Equal(t, 40, cfg.Pet.InitialHunger)
	assert.Equal(t, 30*time.Second, cfg.Pet.DecayInterval)
	assert.Equal(t, 7, cfg.Pet.DecayAmount)
	assert.Equal(t, 15, cfg.Tuning.MaxMessagesPerSecond, "explicit value beats the profile")
	assert.Equal(t, 8, cfg.Tuning.ClientSendBuffer, "low profile baseline")
	assert.Equal(t, 2000, cfg.Tuning.EventRetention)
}

func TestProviderKeyFromVendorEnv(t *testing.T) {
	t.Setenv("VAULT_TUTOR_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Tutor.Provider)
	assert.Equal(t, "secret", cfg.Tutor.APIKey)
	assert.Equal(t, "gemini-2.5-flash", cfg.Tutor.Model)
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"hunger out of range": "pet:\n  initial_hunger: 120\n",
		"same intervals":      "pet:\n  decay_interval: 10s\n  growth_interval: 10s\n",
		"unknown provider":    "tutor:\n  provider: parrot\n",
		"missing key":         "tutor:\n  provider: openai\n",
		"unknown profile":     "tuning:\n  profile: turbo\n",
	}
	t.Setenv("OPENAI_API_KEY", "")
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
