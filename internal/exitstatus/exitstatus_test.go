package exitstatus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromInstallResult(t *testing.T) {
	cases := []struct {
		name        string
		kind        string
		description string
		want        Code
	}{
		{"ok", "Ok", "installed", Ok},
		{"need completion", "NeedCompletion", "pending reboot", InstallNeedsReboot},
		{"no space", "DownloadFailed_NoSpace", "disk full", DownloadFailureNoSpace},
		{"download failed", "DownloadFailed", "connection reset", DownloadFailure},
		{"verification failed", "VerificationFailed", "hash mismatch", DownloadFailureVerificationFailed},
		{"unmapped kind", "SomethingElse", "whatever", UnknownError},
		{"rollback ok overrides kind", "Ok", "InstallRollbackOk", InstallRollbackOk},
		{"rollback needs reboot overrides kind", "NeedCompletion", "InstallRollbackNeedsReboot", InstallRollbackNeedsReboot},
		{"rollback failed prefix overrides kind", "DownloadFailed", "InstallRollbackFailed: no candidate", InstallRollbackFailed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, FromInstallResult(c.kind, c.description))
		})
	}
}

func TestCodeString(t *testing.T) {
	require.Equal(t, "Ok", Ok.String())
	require.Equal(t, "InstallRollbackNeedsReboot", InstallRollbackNeedsReboot.String())
	require.Equal(t, "UnknownError", Code(999).String())
}
