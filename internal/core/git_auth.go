package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// tokenEnvVars are checked in order for an HTTPS access token.
var tokenEnvVars = []string{"GIT_TOKEN", "GITHUB_TOKEN", "GITLAB_TOKEN", "GITEA_TOKEN"}

// isSSHURL reports whether a clone URL uses the SSH protocol, either as
// ssh://... or in the scp-like user@host:path form.
func isSSHURL(repoURL string) bool {
	if strings.HasPrefix(repoURL, "ssh://") {
		return true
	}
	if strings.Contains(repoURL, "://") {
		return false
	}
	at := strings.Index(repoURL, "@")
	colon := strings.Index(repoURL, ":")
	return at > 0 && colon > at
}

// buildAuthMethod returns an auth method appropriate for the clone URL.
//
// SSH URLs use the SSH agent, then key files in ~/.ssh. HTTPS URLs use a
// token or username/password from the environment and fall back to
// anonymous access (nil) when none is set.
func buildAuthMethod(repoURL string) (transport.AuthMethod, error) {
	if isSSHURL(repoURL) {
		return buildSSHAuth(sshUser(repoURL))
	}
	return buildHTTPSAuth(), nil
}

func sshUser(repoURL string) string {
	rest := strings.TrimPrefix(repoURL, "ssh://")
	if at := strings.Index(rest, "@"); at > 0 && !strings.Contains(rest[:at], "/") {
		return rest[:at]
	}
	return gitssh.DefaultUsername
}

func buildSSHAuth(user string) (transport.AuthMethod, error) {
	if auth, err := gitssh.NewSSHAgentAuth(user); err == nil {
		return auth, nil
	}

	home := userHomeDir()
	if home == "" {
		return nil, fmt.Errorf("SSH authentication unavailable: no SSH agent and no home directory")
	}

	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		keyFile := filepath.Join(home, ".ssh", name)
		if !fileExists(keyFile) {
			continue
		}
		auth, err := gitssh.NewPublicKeysFromFile(user, keyFile, "")
		if err == nil {
			return auth, nil
		}
	}

	return nil, fmt.Errorf("SSH authentication unavailable: no SSH agent and no usable key in %s", filepath.Join(home, ".ssh"))
}

func buildHTTPSAuth() transport.AuthMethod {
	for _, envVar := range tokenEnvVars {
		if token := os.Getenv(envVar); token != "" {
			return &githttp.BasicAuth{Username: "token", Password: token}
		}
	}

	if username := os.Getenv("GIT_USERNAME"); username != "" {
		if password := os.Getenv("GIT_PASSWORD"); password != "" {
			return &githttp.BasicAuth{Username: username, Password: password}
		}
	}
	return nil
}
