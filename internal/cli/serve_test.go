package cli

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/BudgetKeeper/internal/config"
)

func TestServe_TLSCertificateCreatedAndShutdown(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--data_dir", t.TempDir(),
		"--log_level", "error",
		"--listen_addr", "127.0.0.1:0",
		"--tls",
	}))
	opts, err := config.Load(fs)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	a, err := newApp(ctx, opts)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, serve(ctx, a))

	_, err = os.Stat(opts.TLSCert)
	assert.NoError(t, err)
	_, err = os.Stat(opts.TLSKey)
	assert.NoError(t, err)
}
