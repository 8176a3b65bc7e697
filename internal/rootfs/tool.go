package rootfs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Tool abstracts the content-addressed tree binary (ostree in the field):
// remote registration, pulling a commit, staging a deployment, and
// inspecting the booted/pending state. The production implementation shells
// out to the tree binary the way the teacher's lint.GitUncommittedRenameDetector
// shells out to git; tests substitute a fake.
type Tool interface {
	IsRemoteConfigured(ctx context.Context, name string) (bool, error)
	RegisterRemote(ctx context.Context, name, url string, tlsMaterial map[string]string) error
	Pull(ctx context.Context, remoteName, commitHash string) error
	CurrentCommit(ctx context.Context) (string, error)
	PendingCommit(ctx context.Context) (string, bool, error)
	Deploy(ctx context.Context, commitHash string) (needsCompletion bool, err error)
}

// CLITool invokes the `ostree` binary directly.
type CLITool struct {
	sysroot string
	binary  string
}

// NewCLITool builds a CLITool rooted at sysroot, using "ostree" from PATH
// unless binary is overridden.
func NewCLITool(sysroot, binary string) *CLITool {
	if binary == "" {
		binary = "ostree"
	}
	return &CLITool{sysroot: sysroot, binary: binary}
}

func (t *CLITool) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"--repo=" + t.sysroot + "/ostree/repo"}, args...)
	// #nosec G204 -- binary name and repo path are operator-controlled config, not user input
	cmd := exec.CommandContext(ctx, t.binary, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %v: %w: %s", t.binary, args, err, stderr.String())
	}
	return stdout.String(), nil
}

func (t *CLITool) IsRemoteConfigured(ctx context.Context, name string) (bool, error) {
	out, err := t.run(ctx, "remote", "list")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

func (t *CLITool) RegisterRemote(ctx context.Context, name, url string, tlsMaterial map[string]string) error {
	args := []string{"remote", "add", "--no-gpg-verify", name, url}
	for k, v := range tlsMaterial {
		args = append(args, fmt.Sprintf("--set=%s=%s", k, v))
	}
	_, err := t.run(ctx, args...)
	return err
}

func (t *CLITool) Pull(ctx context.Context, remoteName, commitHash string) error {
	_, err := t.run(ctx, "pull", remoteName, commitHash)
	return err
}

func (t *CLITool) CurrentCommit(ctx context.Context) (string, error) {
	out, err := t.run(ctx, "admin", "status")
	if err != nil {
		return "", err
	}
	return parseBootedCommit(out), nil
}

func (t *CLITool) PendingCommit(ctx context.Context) (string, bool, error) {
	out, err := t.run(ctx, "admin", "status")
	if err != nil {
		return "", false, err
	}
	commit, ok := parsePendingCommit(out)
	return commit, ok, nil
}

func (t *CLITool) Deploy(ctx context.Context, commitHash string) (bool, error) {
	_, err := t.run(ctx, "admin", "deploy", commitHash)
	if err != nil {
		return false, err
	}
	// A successful deploy always requires a reboot to become the booted
	// deployment; callers observe this uniformly as "needs completion".
	return true, nil
}

// parseBootedCommit/parsePendingCommit extract the relevant commit lines
// from `ostree admin status` output; the exact textual format is tool
// version-dependent, so this is intentionally permissive.
func parseBootedCommit(out string) string {
	return firstMatch(out, "* ")
}

func parsePendingCommit(out string) (string, bool) {
	m := firstMatch(out, "  ")
	return m, m != ""
}

func firstMatch(out, prefix string) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}
