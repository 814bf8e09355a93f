package cloudsync

import (
	"fmt"
	"strings"

	"github.com/atinyakov/BudgetKeeper/internal/filesystem/dropbox"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/s3"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/webdav"
)

// SyncMode selects the remote provider.
type SyncMode string

const (
	ModeNone    SyncMode = "none"
	ModeDropbox SyncMode = "dropbox"
	ModeWebDav  SyncMode = "webdav"
	ModeS3      SyncMode = "s3"
)

// InputAuthorizationCode is the EnableCloudSync input carrying a Dropbox
// authorization code to exchange for tokens.
const InputAuthorizationCode = "code"

// ParseMode accepts the mode names case-insensitively. An empty string is
// ModeNone.
func ParseMode(s string) (SyncMode, error) {
	switch m := SyncMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeNone:
		return ModeNone, nil
	case ModeDropbox, ModeWebDav, ModeS3:
		return m, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q", s)
	}
}

func (m SyncMode) String() string { return string(m) }

// credentialKeys are the provider keys persisted for each mode.
var credentialKeys = map[SyncMode][]string{
	ModeDropbox: {
		dropbox.KeyAccessToken,
		dropbox.KeyRefreshToken,
		dropbox.KeyExpiry,
		dropbox.KeyAppKey,
		dropbox.KeyAppSecret,
	},
	ModeWebDav: {
		webdav.KeyServer,
		webdav.KeyBaseDirectory,
		webdav.KeyUsername,
		webdav.KeyPassword,
		webdav.KeyAcceptInvalidCertificate,
	},
	ModeS3: {
		s3.KeyBucket,
		s3.KeyRegion,
		s3.KeyEndpoint,
		s3.KeyAccessKey,
		s3.KeySecretKey,
		s3.KeySessionToken,
		s3.KeyPathStyle,
		s3.KeyPrefix,
	},
}

// CredentialKeys returns the credential keys a mode accepts.
func CredentialKeys(m SyncMode) []string {
	return append([]string(nil), credentialKeys[m]...)
}

func pick(mode SyncMode, input map[string]string) map[string]string {
	out := make(map[string]string)
	for _, k := range credentialKeys[mode] {
		if v, ok := input[k]; ok && v != "" {
			out[k] = v
		}
	}
	return out
}
