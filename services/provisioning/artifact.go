package provisioning

import (
	"bufio"
	"bytes"
	"errors"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// ConfigContentType is the media type of a WireGuard client profile.
const ConfigContentType = "application/x-wireguard-profile"

// verifyArtifact checks that content looks like the profile generated for
// publicKey. Profiles without a PrivateKey line, or devices without a
// recorded public key, are only checked for emptiness.
func verifyArtifact(content []byte, publicKey string) error {
	if len(bytes.TrimSpace(content)) == 0 {
		return errors.New("configuration file is empty")
	}
	if publicKey == "" {
		return nil
	}
	priv := interfaceValue(content, "PrivateKey")
	if priv == "" {
		return nil
	}

	privKey, err := wgtypes.ParseKey(priv)
	if err != nil {
		return errors.New("configuration carries a malformed PrivateKey")
	}
	want, err := wgtypes.ParseKey(publicKey)
	if err != nil {
		return errors.New("stored public key is malformed")
	}
	derived, err := curve25519.X25519(privKey[:], curve25519.Basepoint)
	if err != nil {
		return err
	}
	if !bytes.Equal(derived, want[:]) {
		return errors.New("configuration key does not match the provisioned public key")
	}
	return nil
}

// interfaceValue returns the value of key inside the [Interface] section.
func interfaceValue(content []byte, key string) string {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	inInterface := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			inInterface = strings.EqualFold(line, "[Interface]")
			continue
		}
		if !inInterface {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
