package cmd

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEnvTestCommand mirrors the flags setupEnvironment looks at.
func newEnvTestCommand(seed *int64) *cobra.Command {
	c := &cobra.Command{Use: "test"}
	c.Flags().StringVar(&logLevel, "log", "warn", "")
	c.Flags().Int64Var(seed, "seed", 0, "")
	return c
}

func TestSetupEnvironment(t *testing.T) {
	old := logrus.GetLevel()
	t.Cleanup(func() { logrus.SetLevel(old) })

	tests := []struct {
		name      string
		env       map[string]string
		args      []string
		wantLevel logrus.Level
		wantSeed  int64
		wantErr   bool
	}{
		{"defaults", nil, nil, logrus.WarnLevel, 0, false},
		{"env fills unset flags", map[string]string{envLogLevel: "debug", envSeed: "99"}, nil, logrus.DebugLevel, 99, false},
		{"flags win over env", map[string]string{envLogLevel: "debug", envSeed: "99"}, []string{"--log", "error", "--seed", "3"}, logrus.ErrorLevel, 3, false},
		{"bad level", nil, []string{"--log", "loud"}, 0, 0, true},
		{"bad env seed", map[string]string{envSeed: "abc"}, nil, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envLogLevel, "")
			t.Setenv(envSeed, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var seed int64
			c := newEnvTestCommand(&seed)
			require.NoError(t, c.ParseFlags(tt.args))

			err := setupEnvironment(c, nil)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, logrus.GetLevel())
			assert.Equal(t, tt.wantSeed, seed)
			assert.Equal(t, tt.env[envSeed] != "" || len(tt.args) > 0, c.Flags().Changed("seed"))
		})
	}
}
