package packager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/openpgp"        //nolint:staticcheck // signed archives use the OpenPGP message format
	"golang.org/x/crypto/openpgp/packet" //nolint:staticcheck // same as above
	_ "golang.org/x/crypto/ripemd160"    //nolint:staticcheck // preferred hash of generated keys
)

var keyringNames = []string{"secring.gpg", "secring.asc", "pubring.gpg", "pubring.asc"}

// OpenPGPSigner produces binary OpenPGP signed messages.
type OpenPGPSigner struct{}

// Sign implements Signer. keyring is a key file or a directory containing
// secring.gpg or secring.asc. key matches a key id, fingerprint, user id,
// name or email.
func (OpenPGPSigner) Sign(ctx context.Context, path, keyring, key, passphrase, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	entities, err := LoadKeyring(keyring)
	if err != nil {
		return "", err
	}
	signer, err := findEntity(entities, key)
	if err != nil {
		return "", err
	}
	if err := unlock(signer, passphrase); err != nil {
		return "", err
	}

	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = in.Close() }()

	sigPath := SignaturePath(path, outDir)
	out, err := os.OpenFile(sigPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", sigPath, err)
	}
	if err := writeSigned(out, in, signer, filepath.Base(path)); err != nil {
		_ = out.Close()
		_ = os.Remove(sigPath)
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(sigPath)
		return "", fmt.Errorf("close %s: %w", sigPath, err)
	}
	return sigPath, nil
}

func writeSigned(out io.Writer, in io.Reader, signer *openpgp.Entity, name string) error {
	w, err := openpgp.Sign(out, signer, &openpgp.FileHints{IsBinary: true, FileName: name}, nil)
	if err != nil {
		return fmt.Errorf("start signature: %w", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("sign content: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish signature: %w", err)
	}
	return nil
}

// Verify checks the signed message at sigPath against keyring and returns
// the signed payload.
func Verify(sigPath, keyring string) ([]byte, error) {
	entities, err := LoadKeyring(keyring)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(sigPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", sigPath, err)
	}
	defer func() { _ = f.Close() }()

	md, err := openpgp.ReadMessage(f, entities, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("read signed message: %w", err)
	}
	if !md.IsSigned {
		return nil, errors.New("message is not signed")
	}
	payload, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if md.SignedBy == nil {
		return nil, fmt.Errorf("unknown signer %X", md.SignedByKeyId)
	}
	if md.SignatureError != nil {
		return nil, fmt.Errorf("bad signature: %w", md.SignatureError)
	}
	return payload, nil
}

// LoadKeyring reads an armored or binary keyring from a file, or from the
// first known keyring file inside a directory.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("keyring %s: %w", path, err)
	}
	if info.IsDir() {
		for _, name := range keyringNames {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				return readKeyring(candidate)
			}
		}
		return nil, fmt.Errorf("keyring %s: no keyring file found", path)
	}
	return readKeyring(path)
}

func readKeyring(path string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}
	var list openpgp.EntityList
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN")) {
		list, err = openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	} else {
		list, err = openpgp.ReadKeyRing(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("parse keyring %s: %w", path, err)
	}
	return list, nil
}

func findEntity(entities openpgp.EntityList, key string) (*openpgp.Entity, error) {
	want := strings.ToUpper(strings.TrimPrefix(strings.TrimPrefix(key, "0x"), "0X"))
	for _, e := range entities {
		if e.PrimaryKey == nil {
			continue
		}
		fingerprint := fmt.Sprintf("%X", e.PrimaryKey.Fingerprint)
		if want == e.PrimaryKey.KeyIdString() || want == e.PrimaryKey.KeyIdShortString() || want == fingerprint {
			return e, nil
		}
		for id, ident := range e.Identities {
			if ident.UserId == nil {
				continue
			}
			if key == id || key == ident.UserId.Email || key == ident.UserId.Name {
				return e, nil
			}
		}
	}
	return nil, fmt.Errorf("key %q not found in keyring", key)
}

func unlock(e *openpgp.Entity, passphrase string) error {
	if e.PrivateKey == nil {
		return fmt.Errorf("key %s has no private part", e.PrimaryKey.KeyIdShortString())
	}
	keys := []*packet.PrivateKey{e.PrivateKey}
	for _, sub := range e.Subkeys {
		if sub.PrivateKey != nil {
			keys = append(keys, sub.PrivateKey)
		}
	}
	for _, k := range keys {
		if !k.Encrypted {
			continue
		}
		if err := k.Decrypt([]byte(passphrase)); err != nil {
			return fmt.Errorf("unlock key %s: %w", e.PrimaryKey.KeyIdShortString(), err)
		}
	}
	return nil
}
