package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Candidate is one pre-approved wireless network, in configuration order.
type Candidate struct {
	SSID     string
	Password string
}

// Snapshot is the externally owned network configuration as read at one point
// in time. It is replaced wholesale on reload and never mutated in place.
type Snapshot struct {
	Onboarded   bool
	PrimarySSID string
	Candidates  []Candidate
}

// Find returns the candidate with the given SSID, if configured.
func (s Snapshot) Find(ssid string) (Candidate, bool) {
	for _, c := range s.Candidates {
		if c.SSID == ssid {
			return c, true
		}
	}
	return Candidate{}, false
}

// TrialOrder returns the candidate order for a failover attempt: the primary
// candidate first when configured and present, then the remaining candidates
// in their original order, each exactly once.
func (s Snapshot) TrialOrder() []Candidate {
	order := make([]Candidate, 0, len(s.Candidates))
	primary, hasPrimary := s.Find(s.PrimarySSID)
	hasPrimary = hasPrimary && s.PrimarySSID != ""
	if hasPrimary {
		order = append(order, primary)
	}
	for _, c := range s.Candidates {
		if hasPrimary && c.SSID == primary.SSID {
			continue
		}
		order = append(order, c)
	}
	return order
}

const networksSection = "networks"

// isNetworksSection accepts both section spellings seen in deployed config
// files, the same way setup_completed and onboarded are synonyms.
func isNetworksSection(name string) bool {
	return name == networksSection || name == "wifi_networks"
}

// LoadNetworks parses the externally owned network configuration file. The
// file is a restricted TOML subset: top-level key = value pairs plus repeated
// [[networks]] blocks carrying ssid and an optional password or psk.
//
// A missing file means the device has not been onboarded yet and yields an
// empty snapshot without error. A file that exists but cannot be read is an
// error; the caller keeps its previous snapshot.
func LoadNetworks(path string) (Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("open networks config: %w", err)
	}
	defer file.Close()

	var (
		snapshot Snapshot
		current  Candidate
		section  string
	)

	closeBlock := func() {
		if section != networksSection {
			return
		}
		// Candidates without an SSID are dropped silently, as are
		// duplicates of an earlier SSID.
		if _, dup := snapshot.Find(current.SSID); current.SSID != "" && !dup {
			snapshot.Candidates = append(snapshot.Candidates, current)
		}
		current = Candidate{}
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[[") && strings.HasSuffix(line, "]]") {
			closeBlock()
			name := strings.TrimSpace(line[2 : len(line)-2])
			if isNetworksSection(name) {
				section = networksSection
			} else {
				section = name
			}
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			closeBlock()
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))

		switch section {
		case "":
			switch key {
			case "setup_completed", "onboarded":
				snapshot.Onboarded = value == "true"
			case "primary_ssid":
				snapshot.PrimarySSID = value
			}
		case networksSection:
			switch key {
			case "ssid":
				current.SSID = value
			case "password", "psk":
				current.Password = value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("read networks config: %w", err)
	}
	closeBlock()

	return snapshot, nil
}

func unquote(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		return value[1 : len(value)-1]
	}
	return value
}
