package osmapp

import (
	"context"
	"testing"

	"github.com/advdv/osmhttp/ratelimit"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

type mockSecretReader struct {
	secrets map[string]string
}

func (m *mockSecretReader) GetSecretString(_ context.Context, secretID string) (string, error) {
	secret, ok := m.secrets[secretID]
	if !ok {
		return "", errors.Newf("secret %q not found", secretID)
	}
	return secret, nil
}

var _ SecretReader = &mockSecretReader{}

func TestRedisURL(t *testing.T) {
	secrets := &mockSecretReader{secrets: map[string]string{
		"plain": "redis://plain:6379/0",
		"json":  `{"redis":{"url":"redis://json:6379/1"}}`,
	}}

	tests := []struct {
		name    string
		env     func(e *testEnv)
		want    string
		wantErr string
	}{
		{name: "nothing configured", env: func(*testEnv) {}},
		{
			name: "url wins over secret",
			env: func(e *testEnv) {
				e.RedisURL = "redis://direct:6379"
				e.RedisSecret = "plain"
			},
			want: "redis://direct:6379",
		},
		{name: "plain secret", env: func(e *testEnv) { e.RedisSecret = "plain" }, want: "redis://plain:6379/0"},
		{
			name: "json path in secret",
			env: func(e *testEnv) {
				e.RedisSecret = "json"
				e.RedisSecretPath = "redis.url"
			},
			want: "redis://json:6379/1",
		},
		{
			name: "missing path",
			env: func(e *testEnv) {
				e.RedisSecret = "json"
				e.RedisSecretPath = "redis.password"
			},
			wantErr: `read redis url: secret path "redis.password" not found in secret "json"`,
		},
		{
			name:    "missing secret",
			env:     func(e *testEnv) { e.RedisSecret = "other" },
			wantErr: `read redis url: secret "other" not found`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env testEnv
			tt.env(&env)

			got, err := redisURL(env, secrets)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLimiterStore(t *testing.T) {
	t.Run("memory without url", func(t *testing.T) {
		store, err := newLimiterStore(fxtest.NewLifecycle(t), "", zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &ratelimit.MemoryStore{}, store)
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := newLimiterStore(fxtest.NewLifecycle(t), "mysql://nope", zap.NewNop())
		require.ErrorContains(t, err, "parse redis url")
	})

	t.Run("unreachable redis does not fail start", func(t *testing.T) {
		lc := fxtest.NewLifecycle(t)
		store, err := newLimiterStore(lc, "redis://127.0.0.1:1/0", zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, store)

		lc.RequireStart()
		lc.RequireStop()
	})
}
