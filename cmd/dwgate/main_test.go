package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, environ ...string) (*app, *bytes.Buffer) {
	t.Helper()
	pterm.DisableStyling()

	var out, errOut bytes.Buffer
	return &app{
		v:       viper.New(),
		out:     &out,
		errOut:  &errOut,
		environ: func() []string { return environ },
	}, &out
}

// emptyEnvFile keeps commands from picking up a .env near the test binary.
func emptyEnvFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# no instances\n"), 0o600))
	return path
}

func run(a *app, args ...string) error {
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		a, _ := newTestApp(t)
		require.NoError(t, a.rootCmd().ParseFlags(nil))

		cfg, err := a.loadConfig()
		require.NoError(t, err)
		assert.Equal(t, "stdio", cfg.Transport)
		assert.Equal(t, 100, cfg.DefaultLimit)
		assert.Equal(t, 5*time.Minute, cfg.QueryTimeout)
	})

	t.Run("flags override file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dwgate.yaml")
		require.NoError(t, os.WriteFile(path, []byte("default_limit: 40\nmax_rows: 400\n"), 0o600))

		a, _ := newTestApp(t)
		cmd := a.rootCmd()
		require.NoError(t, cmd.PersistentFlags().Parse([]string{"--config", path, "--max-rows", "800"}))

		cfg, err := a.loadConfig()
		require.NoError(t, err)
		assert.Equal(t, 40, cfg.DefaultLimit)
		assert.Equal(t, 800, cfg.MaxRows)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("DWGATE_QUERY_TIMEOUT", "45s")
		a, _ := newTestApp(t)
		a.rootCmd()

		cfg, err := a.loadConfig()
		require.NoError(t, err)
		assert.Equal(t, 45*time.Second, cfg.QueryTimeout)
	})

	t.Run("invalid", func(t *testing.T) {
		a, _ := newTestApp(t)
		cmd := a.rootCmd()
		require.NoError(t, cmd.PersistentFlags().Parse([]string{"--default-limit", "50000"}))

		_, err := a.loadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestConfigShow(t *testing.T) {
	a, out := newTestApp(t)
	require.NoError(t, run(a, "config", "show", "--transport", "http", "--default-limit", "50"))

	assert.Contains(t, out.String(), "transport: http")
	assert.Contains(t, out.String(), "default_limit: 50")
	assert.Contains(t, out.String(), "http_address: 127.0.0.1:8080")
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		want    string
	}{
		{
			name: "read is bounded",
			args: []string{"validate", "SELECT * FROM orders"},
			want: `"processed_query": "SELECT * FROM orders LIMIT 100"`,
		},
		{
			name:    "destructive blocked",
			args:    []string{"validate", "DROP TABLE orders"},
			wantErr: true,
			want:    `"valid": false`,
		},
		{
			name: "destructive allowed",
			args: []string{"validate", "--allow-destructive", "DROP TABLE orders"},
			want: `"valid": true`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, out := newTestApp(t)
			err := run(a, append(tt.args, "--env-file", emptyEnvFile(t))...)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestPlatformsCommand(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		a, out := newTestApp(t)
		require.NoError(t, run(a, "platforms", "--env-file", emptyEnvFile(t)))
		assert.Contains(t, out.String(), `"available_platforms": []`)
	})

	t.Run("from environment", func(t *testing.T) {
		a, out := newTestApp(t, "MYSQL_CONNECTION=mysql://u:p@db.internal:3306/shop")
		require.NoError(t, run(a, "platforms", "--env-file", emptyEnvFile(t)))
		assert.Contains(t, out.String(), `"mysql"`)
		assert.Contains(t, out.String(), "db.internal")
		assert.NotContains(t, out.String(), "u:p@")
	})
}

func TestExamplesCommand(t *testing.T) {
	a, out := newTestApp(t)
	require.NoError(t, run(a, "examples", "redshift", "--env-file", emptyEnvFile(t)))
	assert.Contains(t, out.String(), `"platform": "redshift"`)
	assert.Contains(t, out.String(), "SELECT")

	a, _ = newTestApp(t)
	err := run(a, "examples", "oracle", "--env-file", emptyEnvFile(t))
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	a, out := newTestApp(t)
	require.NoError(t, run(a, "version"))
	assert.Contains(t, out.String(), "Version:    dev")
}
