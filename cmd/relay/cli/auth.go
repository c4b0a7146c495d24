package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loopwire/relay/internal/config"
	"github.com/loopwire/relay/internal/credentials"
	"github.com/loopwire/relay/pkg/oauthclient"
)

// newAuthCmd wires only the credential-store side of §4.4: importing a
// token an external collaborator tool already obtained. The interactive
// browser OAuth flows that obtain that token in the first place stay out
// of scope and are not reimplemented here.
func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider credentials",
	}
	cmd.AddCommand(newAuthImportCmd(), newAuthStatusCmd())
	return cmd
}

func newAuthImportCmd() *cobra.Command {
	var cfgPath, provider, identity, tokenFile, refreshToken, projectID string
	var expiresInSeconds int64
	cmd := &cobra.Command{
		Use:   "import <provider>",
		Short: "Import an access token obtained by an external collaborator tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider = args[0]
			return runAuthImport(cfgPath, provider, identity, tokenFile, refreshToken, projectID, expiresInSeconds)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "relay.yaml", "path to config yaml")
	cmd.Flags().StringVar(&identity, "identity", "default", "credential-store identity for this provider")
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "path to a file containing the access token (default: read from stdin)")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "refresh token, if the collaborator tool provided one")
	cmd.Flags().StringVar(&projectID, "project-id", "", "provider project id, if applicable (e.g. Vertex AI)")
	cmd.Flags().Int64Var(&expiresInSeconds, "expires-in", 3600, "seconds until the access token expires")
	return cmd
}

func runAuthImport(cfgPath, provider, identity, tokenFile, refreshToken, projectID string, expiresInSeconds int64) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	pc, ok := cfg.Providers[provider]
	if !ok {
		return fmt.Errorf("no provider %q configured in %s", provider, cfgPath)
	}
	if pc.OAuth == nil {
		return fmt.Errorf("provider %q has no oauth entry configured; nothing to import", provider)
	}

	token, err := readToken(tokenFile)
	if err != nil {
		return err
	}

	cred, err := credentials.NewManager(cfg.CredentialStore.Path, oauthclient.New(nil))
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	entry := credentials.Entry{
		AccessToken:  token,
		RefreshToken: strings.TrimSpace(refreshToken),
		ExpiresAt:    time.Now().Add(time.Duration(expiresInSeconds) * time.Second),
		ProjectID:    strings.TrimSpace(projectID),
	}
	key := provider + ":" + identity
	if err := cred.ImportCollaboratorEntry(key, entry, "relay auth import"); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Printf("imported credential for %s (identity=%s), expires %s\n", provider, identity, entry.ExpiresAt.Format(time.RFC3339))
	return nil
}

func readToken(tokenFile string) (string, error) {
	if strings.TrimSpace(tokenFile) == "" {
		b, err := readAllStdin()
		if err != nil {
			return "", fmt.Errorf("reading token from stdin: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	// #nosec G304 -- path comes from a trusted CLI flag.
	b, err := os.ReadFile(tokenFile)
	if err != nil {
		return "", fmt.Errorf("reading token file %q: %w", tokenFile, err)
	}
	return strings.TrimSpace(string(b)), nil
}

func readAllStdin() ([]byte, error) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			if n == 0 {
				break
			}
		}
		if n == 0 {
			break
		}
	}
	return buf, nil
}

func newAuthStatusCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which providers have usable credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "relay.yaml", "path to config yaml")
	return cmd
}

func runAuthStatus(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	for key, pc := range cfg.Providers {
		switch {
		case pc.OAuth != nil:
			fmt.Printf("%-20s oauth (identity=%s)\n", key, pc.OAuth.Identity)
		case pc.APIKey != "":
			fmt.Printf("%-20s api_key\n", key)
		default:
			fmt.Printf("%-20s unconfigured\n", key)
		}
	}
	return nil
}
