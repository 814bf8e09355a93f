package s3_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/BudgetKeeper/internal/filesystem"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/fstest"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/s3"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/s3/s3test"
)

func creds(bucket, accessKey string) map[string]string {
	return map[string]string{
		s3.KeyBucket:    bucket,
		s3.KeyRegion:    "eu-west-1",
		s3.KeyEndpoint:  s3test.Endpoint,
		s3.KeyAccessKey: accessKey,
		s3.KeySecretKey: "secret",
		s3.KeyPathStyle: "true",
	}
}

func authenticated(t *testing.T, fake *s3test.Fake, c map[string]string) *s3.FS {
	t.Helper()
	fsys := s3.New(s3.Options{HTTPClient: fake.Client()})
	require.NoError(t, fsys.SetAuthentication(c))
	return fsys
}

func TestFS_Contract(t *testing.T) {
	fake := s3test.New("budgets", "AKIDTEST")
	fstest.Run(t, authenticated(t, fake, creds("budgets", "AKIDTEST")))
}

func TestFS_Prefix(t *testing.T) {
	fake := s3test.New("budgets", "AKIDTEST")
	c := creds("budgets", "AKIDTEST")
	c[s3.KeyPrefix] = "devices/shared"
	fsys := authenticated(t, fake, c)

	require.NoError(t, fsys.WriteFile(context.Background(), "budget.db.gz", []byte("snapshot")))
	got, ok := fake.Object("devices/shared/budget.db.gz")
	require.True(t, ok)
	assert.Equal(t, []byte("snapshot"), got)
}

func TestFS_Verify(t *testing.T) {
	fake := s3test.New("budgets", "AKIDTEST")
	tests := []struct {
		name    string
		creds   map[string]string
		wantErr bool
	}{
		{name: "valid", creds: creds("budgets", "AKIDTEST")},
		{name: "wrong access key", creds: creds("budgets", "AKIDOTHER"), wantErr: true},
		{name: "wrong bucket", creds: creds("elsewhere", "AKIDTEST"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authenticated(t, fake, tt.creds).Verify(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, filesystem.ErrIO)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFS_RequiresAuthentication(t *testing.T) {
	fsys := s3.New(s3.Options{})
	_, err := fsys.FileExists(context.Background(), "budget.db")
	assert.ErrorIs(t, err, filesystem.ErrNotAuthenticated)
	assert.Error(t, fsys.SetAuthentication(map[string]string{s3.KeyRegion: "eu-west-1"}))
}
