// Package profile loads named SMTP credential profiles.
//
// Profiles live in a YAML file:
//
//	defaults:
//	  host: smtp.example.com
//	  port: 587
//	profiles:
//	  newsletter:
//	    name: Newsletter
//	    email: news@example.com
//	    password: secret
//
// Fields missing from a profile are taken from defaults. Keys are matched
// case-insensitively and the reserved key "test" is never served.
package profile

import (
	"os"
	"sort"
	"strings"

	"dario.cat/mergo"
	"github.com/pkg/errors"
	"github.com/pure-golang/mailbatch/mail"
	"github.com/pure-golang/mailbatch/mail/smtp"
	"gopkg.in/yaml.v3"
)

// Reserved is the profile key excluded from lookup.
const Reserved = "test"

const defaultPort = 587

// ErrNotFound is returned for unknown or reserved profile names.
var ErrNotFound = errors.New("profile not found")

// Profile is one sender identity with its SMTP account.
type Profile struct {
	Name     string `yaml:"name"`     // sender display name
	Email    string `yaml:"email"`    // sender address
	Host     string `yaml:"host"`     // SMTP host
	Port     int    `yaml:"port"`     // SMTP port
	Login    string `yaml:"login"`    // defaults to Email
	Password string `yaml:"password"` // login password
}

// From returns the sender address used in the From header and envelope.
func (p Profile) From() mail.Address {
	return mail.Address{Name: p.Name, Address: p.Email}
}

// SMTP returns the session configuration of the profile.
func (p Profile) SMTP() smtp.Config {
	return smtp.Config{
		Host:     p.Host,
		Port:     p.Port,
		Username: p.Login,
		Password: p.Password,
	}
}

type file struct {
	Defaults Profile            `yaml:"defaults"`
	Profiles map[string]Profile `yaml:"profiles"`
}

// Table is an immutable set of profiles keyed by lower-case name.
type Table struct {
	profiles map[string]Profile
}

// Load reads and parses the profile file at path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read profiles file")
	}

	t, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", path)
	}
	return t, nil
}

// Parse builds a Table from YAML.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse profiles")
	}

	t := &Table{profiles: make(map[string]Profile, len(f.Profiles))}
	for key, p := range f.Profiles {
		if err := mergo.Merge(&p, f.Defaults); err != nil {
			return nil, errors.Wrapf(err, "failed to apply defaults to profile %s", key)
		}
		if p.Login == "" {
			p.Login = p.Email
		}
		if p.Port == 0 {
			p.Port = defaultPort
		}
		if p.Host == "" || p.Email == "" {
			return nil, errors.Errorf("profile %s: host and email are required", key)
		}

		name := strings.ToLower(key)
		if _, dup := t.profiles[name]; dup {
			return nil, errors.Errorf("profile %s is defined more than once", name)
		}
		t.profiles[name] = p
	}
	return t, nil
}

// Lookup returns the profile stored under name.
func (t *Table) Lookup(name string) (Profile, error) {
	key := strings.ToLower(name)
	if key == Reserved {
		return Profile{}, errors.Wrap(ErrNotFound, name)
	}
	p, ok := t.profiles[key]
	if !ok {
		return Profile{}, errors.Wrap(ErrNotFound, name)
	}
	return p, nil
}

// Names lists the servable profile names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.profiles))
	for name := range t.profiles {
		if name == Reserved {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
