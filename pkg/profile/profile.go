// Package profile reads and writes the CLI profile file holding the account
// name, the access token and the last chosen country.
package profile

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	keyUsername = "username"
	keyToken    = "access_token"
	keyCountry  = "country"
)

// Profile is the content of the profile file. Keys it does not know about are
// preserved on Save.
type Profile struct {
	path string
	k    *koanf.Koanf
}

// Load reads the profile at path. A missing file yields an empty profile.
func Load(path string) (*Profile, error) {
	k := koanf.New("::")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		slog.Debug("profile_absent", "path", path)
		return &Profile{path: path, k: k}, nil
	}
	if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
		return nil, errors.Wrap(err, "failed to read profile")
	}
	return &Profile{path: path, k: k}, nil
}

// Path returns the file the profile is stored in.
func (p *Profile) Path() string { return p.path }

func (p *Profile) Username() string    { return p.k.String(keyUsername) }
func (p *Profile) AccessToken() string { return p.k.String(keyToken) }
func (p *Profile) Country() string     { return p.k.String(keyCountry) }

// SetCredentials records a login.
func (p *Profile) SetCredentials(username, token string) error {
	return p.set(map[string]any{keyUsername: username, keyToken: token})
}

// SetCountry records the chosen country.
func (p *Profile) SetCountry(country string) error {
	return p.set(map[string]any{keyCountry: country})
}

func (p *Profile) set(values map[string]any) error {
	return p.k.Load(confmap.Provider(values, "::"), nil)
}

// Save writes the profile back to its file.
func (p *Profile) Save() error {
	data, err := p.k.Marshal(kjson.Parser())
	if err != nil {
		return errors.Wrap(err, "failed to encode profile")
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create profile directory")
	}
	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write profile")
	}
	slog.Info("profile_saved", "path", p.path)
	return nil
}
