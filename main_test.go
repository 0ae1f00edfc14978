package main

import (
	"net/smtp"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRunDate(t *testing.T) {
	now := time.Date(2025, 3, 15, 6, 30, 0, 0, time.Local)

	d, err := resolveRunDate("", -1, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.Local), d)

	d, err = resolveRunDate("", 0, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.Local), d)

	d, err = resolveRunDate("2024-12-31", -1, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.Local), d)

	_, err = resolveRunDate("2024/12/31", -1, now)
	assert.Error(t, err)
}

func TestRootCommandFlags(t *testing.T) {
	for _, name := range []string{"run-date", "config", "offset-days", "model", "no-comments"} {
		assert.NotNil(t, rootCmd.Flags().Lookup(name), name)
	}
}

func TestFailureMailUsesConfigFile(t *testing.T) {
	for _, key := range []string{"SMTP_SERVER", "SMTP_PORT", "EMAIL_SENDER", "EMAIL_PASSWORD", "EMAIL_RECEIVERS", "SOURCE_DRIVER"} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"source_driver": "bogus",
		"smtp_server": "127.0.0.1",
		"smtp_port": 2525,
		"email_sender": "ops@example.com",
		"email_receivers": ["qa@example.com"]
	}`), 0o644))

	var gotAddr, gotFrom string
	var gotTo []string
	var sent int
	orig := sendMail
	sendMail = func(addr string, _ smtp.Auth, from string, to []string, _ []byte) error {
		sent++
		gotAddr, gotFrom, gotTo = addr, from, to
		return nil
	}
	t.Cleanup(func() {
		sendMail = orig
		rootFlags.configPath = ""
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"--config", path})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")

	require.Equal(t, 1, sent)
	assert.Equal(t, "127.0.0.1:2525", gotAddr)
	assert.Equal(t, "ops@example.com", gotFrom)
	assert.Equal(t, []string{"qa@example.com"}, gotTo)
}
