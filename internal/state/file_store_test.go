package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestFileStore_RoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		state State
	}{
		{
			name:  "station",
			state: State{Mode: ModeStation, ActiveSSID: "Home", LastProbe: 1712000000},
		},
		{
			name:  "access point",
			state: State{Mode: ModeAccessPoint, ActiveSSID: "SentinelSetup", LastProbe: 1712000030},
		},
		{
			name:  "disconnected",
			state: State{Mode: ModeDisconnected},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state")
			store := NewFileStore(path, zerolog.Nop())

			if err := store.Save(context.Background(), tc.state); err != nil {
				t.Fatalf("save state: %v", err)
			}
			loaded, err := store.Load(context.Background())
			if err != nil {
				t.Fatalf("load state: %v", err)
			}
			if loaded != tc.state {
				t.Fatalf("round trip mismatch: saved %+v, loaded %+v", tc.state, loaded)
			}
		})
	}
}

func TestFileStore_LoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	store := NewFileStore(path, zerolog.Nop())

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if loaded.Mode != ModeUnknown || loaded.ActiveSSID != "" {
		t.Fatalf("expected fresh unknown state, got %+v", loaded)
	}
}

func TestFileStore_LoadInconsistentState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	if err := os.WriteFile(path, []byte("mode=station\nssid=\nlast_probe=0\n"), 0o644); err != nil {
		t.Fatalf("write state file: %v", err)
	}
	store := NewFileStore(path, zerolog.Nop())

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if loaded.Mode != ModeUnknown {
		t.Fatalf("expected unknown mode for inconsistent state, got %q", loaded.Mode)
	}
}

func TestFileStore_LoadGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	if err := os.WriteFile(path, []byte("not a state file at all\n"), 0o644); err != nil {
		t.Fatalf("write state file: %v", err)
	}
	store := NewFileStore(path, zerolog.Nop())

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if loaded.Mode != ModeUnknown || loaded.ActiveSSID != "" {
		t.Fatalf("expected fresh unknown state, got %+v", loaded)
	}
}

func TestState_Valid(t *testing.T) {
	cases := []struct {
		name  string
		state State
		want  bool
	}{
		{"station with ssid", State{Mode: ModeStation, ActiveSSID: "Home"}, true},
		{"station without ssid", State{Mode: ModeStation}, false},
		{"ap with ssid", State{Mode: ModeAccessPoint, ActiveSSID: "SentinelSetup"}, true},
		{"ap without ssid", State{Mode: ModeAccessPoint}, false},
		{"disconnected clean", State{Mode: ModeDisconnected}, true},
		{"disconnected with ssid", State{Mode: ModeDisconnected, ActiveSSID: "Home"}, false},
		{"unknown clean", State{Mode: ModeUnknown}, true},
		{"unknown with ssid", State{Mode: ModeUnknown, ActiveSSID: "Home"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.Valid(); got != tc.want {
				t.Fatalf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}
