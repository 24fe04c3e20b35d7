// Package profiles loads named endpoint QoS profiles from TOML files for
// the demo programs.
package profiles

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"rtps/liveliness"
	"rtps/transport"
)

// Profile is one validated endpoint QoS profile.
type Profile struct {
	Kind               liveliness.Kind
	LeaseDuration      time.Duration
	AnnouncementPeriod time.Duration
	Reliability        transport.Reliability
}

// tomlProfile is the TOML representation. Durations are Go duration strings
// or "infinite".
type tomlProfile struct {
	Kind               string `toml:"kind"`
	LeaseDuration      string `toml:"lease_duration"`
	AnnouncementPeriod string `toml:"announcement_period"`
	Reliability        string `toml:"reliability"`
}

type tomlFile struct {
	Profiles map[string]tomlProfile `toml:"profiles"`
}

// LoadFile loads and validates profiles from a TOML file.
func LoadFile(path string) (map[string]Profile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}
	return Parse(string(content))
}

// Parse parses and validates profiles from TOML content.
func Parse(content string) (map[string]Profile, error) {
	var file tomlFile
	if _, err := toml.Decode(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	out := make(map[string]Profile, len(file.Profiles))
	for name, raw := range file.Profiles {
		profile, err := resolve(raw)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		out[name] = profile
	}
	return out, nil
}

func resolve(raw tomlProfile) (Profile, error) {
	kind, err := liveliness.ParseKind(raw.Kind)
	if err != nil {
		return Profile{}, err
	}
	lease, err := parseDuration(raw.LeaseDuration, liveliness.Infinite)
	if err != nil {
		return Profile{}, fmt.Errorf("lease_duration: %w", err)
	}
	announcement, err := parseDuration(raw.AnnouncementPeriod, liveliness.Infinite)
	if err != nil {
		return Profile{}, fmt.Errorf("announcement_period: %w", err)
	}
	reliability := transport.Reliable
	if raw.Reliability != "" {
		reliability, err = transport.ParseReliability(raw.Reliability)
		if err != nil {
			return Profile{}, err
		}
	}
	profile := Profile{
		Kind:               kind,
		LeaseDuration:      lease,
		AnnouncementPeriod: announcement,
		Reliability:        reliability,
	}
	offered := liveliness.Offered{
		Kind:               kind,
		LeaseDuration:      lease,
		AnnouncementPeriod: announcement,
	}
	if err := offered.Validate(); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "infinite" {
		return liveliness.Infinite, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d, nil
}
