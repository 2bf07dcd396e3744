package provisioning

import (
	"fmt"
	"path"
	"strings"

	"nomadpi/models"
	"nomadpi/services/remote"

	"github.com/gosimple/slug"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

const maxDeviceNameLength = 48

// ValidateDeviceName accepts lowercase slugs only, so a name is always a
// safe file name and shell word on the remote host.
func ValidateDeviceName(name string) error {
	if name == "" {
		return models.NewProvisionError(models.KindInvalidDeviceName, "device name is required", nil)
	}
	if len(name) > maxDeviceNameLength {
		return models.NewProvisionError(models.KindInvalidDeviceName,
			fmt.Sprintf("device name must be at most %d characters", maxDeviceNameLength), nil)
	}
	if !slug.IsSlug(name) {
		msg := "device name may only contain lowercase letters, digits, '-' and '_'"
		if suggestion := slug.Make(name); suggestion != "" && len(suggestion) <= maxDeviceNameLength {
			msg += fmt.Sprintf(" (try %q)", suggestion)
		}
		return models.NewProvisionError(models.KindInvalidDeviceName, msg, nil)
	}
	return nil
}

// ArtifactPath is where the template tool writes the client profile for name.
func ArtifactPath(clientDir, name string) string {
	return path.Join(clientDir, name+".conf")
}

// BuildGenerateCommand returns the script that creates the keypair and
// client profile for name. Its last stdout line is the public key.
func BuildGenerateCommand(name, clientDir, templateCommand string) (string, error) {
	if err := ValidateDeviceName(name); err != nil {
		return "", err
	}
	if !path.IsAbs(clientDir) || strings.TrimSpace(templateCommand) == "" {
		return "", models.NewProvisionError(models.KindInternal, "provisioning layout is not configured", nil)
	}

	dir := remote.ShellQuote(clientDir)
	key := remote.ShellQuote(path.Join(clientDir, name+".key"))
	pub := remote.ShellQuote(path.Join(clientDir, name+".key.pub"))
	conf := remote.ShellQuote(ArtifactPath(clientDir, name))
	quotedName := remote.ShellQuote(name)

	lines := []string{
		"set -eu",
		"umask 077",
		"sudo mkdir -p " + dir,
		"sudo wg genkey | sudo tee " + key + " | sudo wg pubkey | sudo tee " + pub + " >/dev/null",
		"sudo " + templateCommand + " " + quotedName + " >/dev/null",
		"sudo test -s " + conf,
		"sudo cat " + pub,
	}
	return strings.Join(lines, "\n"), nil
}

// parsePublicKey extracts the WireGuard public key from the generate command's stdout.
func parsePublicKey(stdout string) (string, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return "", fmt.Errorf("no public key in command output")
	}
	key, err := wgtypes.ParseKey(last)
	if err != nil {
		return "", fmt.Errorf("malformed public key in command output: %w", err)
	}
	return key.String(), nil
}
