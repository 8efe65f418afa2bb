package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "medsched.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "medsched", cfg.App.Name)
	assert.Equal(t, 7012, cfg.Server.Port)
	assert.Equal(t, "cpsat", cfg.Solver.Engine)
	assert.Equal(t, 2, cfg.Solver.MaxConcurrentRuns)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeYAML(t, `
app:
  env: production
server:
  port: 8080
  read_timeout: 45s
solver:
  engine: greedy
  max_concurrent_runs: 4
log:
  level: debug
  format: json
`)
	t.Setenv("MEDSCHED_SERVER_PORT", "9090")
	t.Setenv("MEDSCHED_SOLVER_WORKERS", "3")
	t.Setenv("MEDSCHED_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port, "环境变量覆盖文件")
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "文件未给出的项保留默认值")
	assert.Equal(t, "greedy", cfg.Solver.Engine)
	assert.Equal(t, 4, cfg.Solver.MaxConcurrentRuns)
	assert.Equal(t, 3, cfg.Solver.Workers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{"未知引擎", "solver:\n  engine: ortools\n", nil},
		{"并发数为零", "solver:\n  max_concurrent_runs: 0\n", nil},
		{"端口越界", "", map[string]string{"MEDSCHED_SERVER_PORT": "70000"}},
		{"启用认证但无密钥", "auth:\n  enabled: true\n", nil},
		{"启用消息队列但无地址", "", map[string]string{"MEDSCHED_AMQP_ENABLED": "true"}},
		{"日志格式未知", "log:\n  format: xml\n", nil},
		{"环境变量不是整数", "", map[string]string{"MEDSCHED_SOLVER_WORKERS": "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeYAML(t, tt.yaml)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestAddrs(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":7012", cfg.Server.Addr())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t,
		"host=localhost port=5432 user=medsched password= dbname=medsched sslmode=disable",
		cfg.Database.DSN())
}
