package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/wifi-sentinel/internal/accesspoint"
	"github.com/nholik/wifi-sentinel/internal/config"
	"github.com/nholik/wifi-sentinel/internal/nmcli"
	"github.com/nholik/wifi-sentinel/internal/probe"
	"github.com/nholik/wifi-sentinel/internal/state"
	"github.com/nholik/wifi-sentinel/internal/station"
)

type fakeProber struct {
	verdicts []probe.Verdict
	probes   int
}

func (f *fakeProber) Probe(context.Context) probe.Verdict {
	f.probes++
	if len(f.verdicts) == 0 {
		return probe.Verdict{Reachable: true, FailureClass: probe.FailureNone}
	}
	head := f.verdicts[0]
	if len(f.verdicts) > 1 {
		f.verdicts = f.verdicts[1:]
	}
	return head
}

func (f *fakeProber) ManagerVerdict(context.Context) nmcli.ConnectivityState {
	return nmcli.ConnectivityUnknown
}

type fakeScanner struct {
	visible map[string]struct{}
}

func (f *fakeScanner) Scan(context.Context) map[string]struct{} {
	if f.visible == nil {
		return map[string]struct{}{}
	}
	return f.visible
}

type fakeStation struct {
	outcomes    map[string]station.Outcome
	activeSSID  string
	connects    []string
	disconnects int
	ap          *fakeAP
}

func (f *fakeStation) Connect(_ context.Context, ssid, _ string) station.Outcome {
	f.connects = append(f.connects, ssid)
	// The real manager deactivates the access point before associating,
	// whether or not the attempt ends up succeeding.
	if f.ap != nil {
		f.ap.active = false
	}
	outcome, ok := f.outcomes[ssid]
	if !ok {
		outcome = station.Connected
	}
	if outcome == station.Connected {
		f.activeSSID = ssid
	}
	return outcome
}

func (f *fakeStation) Disconnect(context.Context) {
	f.disconnects++
	f.activeSSID = ""
}

func (f *fakeStation) ActiveSSID(context.Context) (string, bool) {
	return f.activeSSID, f.activeSSID != ""
}

type fakeAP struct {
	active   bool
	enableOK bool
	enables  int
}

func (f *fakeAP) Enable(context.Context) bool {
	f.enables++
	if f.enableOK {
		f.active = true
	}
	return f.enableOK
}

func (f *fakeAP) IsActive(context.Context) bool {
	return f.active
}

func visible(ssids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ssids))
	for _, s := range ssids {
		set[s] = struct{}{}
	}
	return set
}

func newOrchestrator(p *fakeProber, sc *fakeScanner, st *fakeStation, ap *fakeAP) *Orchestrator {
	return New(p, sc, st, ap, zerolog.Nop(), WithSettleDelay(0))
}

func TestTick_NotOnboardedEnablesAPAndStaysPut(t *testing.T) {
	// Scenario A: empty config, not onboarded.
	prober := &fakeProber{}
	scannerFake := &fakeScanner{visible: visible("Home")}
	stationFake := &fakeStation{}
	ap := &fakeAP{enableOK: true}
	o := newOrchestrator(prober, scannerFake, stationFake, ap)

	snapshot := config.Snapshot{
		Candidates: []config.Candidate{{SSID: "Home", Password: "pw"}},
	}

	next := state.State{Mode: state.ModeUnknown}
	for tick := 0; tick < 3; tick++ {
		next = o.Tick(context.Background(), snapshot, next)
		if next.Mode != state.ModeAccessPoint {
			t.Fatalf("tick %d: expected access_point, got %s", tick, next.Mode)
		}
		if next.ActiveSSID != accesspoint.SSID {
			t.Fatalf("tick %d: expected ap ssid, got %q", tick, next.ActiveSSID)
		}
	}

	if len(stationFake.connects) != 0 {
		t.Fatalf("not-onboarded must never attempt stations, got %v", stationFake.connects)
	}
	if ap.enables != 1 {
		t.Fatalf("ap should be enabled once then left alone, got %d enables", ap.enables)
	}
}

func TestTick_CandidateNotVisibleFallsBackToAP(t *testing.T) {
	// Scenario B: one candidate, not visible.
	prober := &fakeProber{}
	scannerFake := &fakeScanner{visible: visible("SomeoneElse")}
	stationFake := &fakeStation{}
	ap := &fakeAP{enableOK: true}
	o := newOrchestrator(prober, scannerFake, stationFake, ap)

	snapshot := config.Snapshot{
		Onboarded:  true,
		Candidates: []config.Candidate{{SSID: "Home", Password: "pw"}},
	}

	next := o.Tick(context.Background(), snapshot, state.State{Mode: state.ModeUnknown})
	if next.Mode != state.ModeAccessPoint {
		t.Fatalf("expected ap fallback, got %s", next.Mode)
	}
	if len(stationFake.connects) != 0 {
		t.Fatalf("invisible candidate must be skipped, got connects %v", stationFake.connects)
	}
}

func TestTick_MovesToNextCandidateWhenProbeFails(t *testing.T) {
	// Scenario C: Home associates but has no internet, Office works.
	prober := &fakeProber{verdicts: []probe.Verdict{
		{Reachable: false, FailureClass: probe.FailureTimeout},
		{Reachable: true, FailureClass: probe.FailureNone},
	}}
	scannerFake := &fakeScanner{visible: visible("Home", "Office")}
	stationFake := &fakeStation{}
	ap := &fakeAP{}
	o := newOrchestrator(prober, scannerFake, stationFake, ap)

	snapshot := config.Snapshot{
		Onboarded: true,
		Candidates: []config.Candidate{
			{SSID: "Home", Password: "a"},
			{SSID: "Office", Password: "b"},
		},
	}

	next := o.Tick(context.Background(), snapshot, state.State{Mode: state.ModeUnknown})
	if next.Mode != state.ModeStation || next.ActiveSSID != "Office" {
		t.Fatalf("expected Station(Office), got %s(%s)", next.Mode, next.ActiveSSID)
	}
	if len(stationFake.connects) != 2 {
		t.Fatalf("expected both candidates tried, got %v", stationFake.connects)
	}
	if stationFake.disconnects != 1 {
		t.Fatalf("unreachable candidate must be disconnected, got %d disconnects", stationFake.disconnects)
	}
	if next.LastProbe == 0 {
		t.Fatal("expected last probe timestamp recorded")
	}
}

func TestTick_PrimaryTriedFirst(t *testing.T) {
	prober := &fakeProber{}
	scannerFake := &fakeScanner{visible: visible("Home", "Office")}
	stationFake := &fakeStation{}
	ap := &fakeAP{}
	o := newOrchestrator(prober, scannerFake, stationFake, ap)

	snapshot := config.Snapshot{
		Onboarded:   true,
		PrimarySSID: "Office",
		Candidates: []config.Candidate{
			{SSID: "Home"},
			{SSID: "Office"},
		},
	}

	next := o.Tick(context.Background(), snapshot, state.State{Mode: state.ModeUnknown})
	if next.ActiveSSID != "Office" {
		t.Fatalf("expected primary Office first, got %q", next.ActiveSSID)
	}
	if len(stationFake.connects) != 1 || stationFake.connects[0] != "Office" {
		t.Fatalf("expected a single connect to Office, got %v", stationFake.connects)
	}
}

func TestTick_HealthyStationStaysPut(t *testing.T) {
	prober := &fakeProber{}
	scannerFake := &fakeScanner{}
	stationFake := &fakeStation{activeSSID: "Home"}
	ap := &fakeAP{}
	o := newOrchestrator(prober, scannerFake, stationFake, ap)

	snapshot := config.Snapshot{
		Onboarded:  true,
		Candidates: []config.Candidate{{SSID: "Home"}},
	}

	current := state.State{Mode: state.ModeStation, ActiveSSID: "Home"}
	next := o.Tick(context.Background(), snapshot, current)
	if next.Mode != state.ModeStation || next.ActiveSSID != "Home" {
		t.Fatalf("expected to stay on Home, got %s(%s)", next.Mode, next.ActiveSSID)
	}
	if len(stationFake.connects) != 0 {
		t.Fatalf("healthy station must not reconnect, got %v", stationFake.connects)
	}
}

func TestTick_StationLostInternetFailsOverThenAP(t *testing.T) {
	prober := &fakeProber{verdicts: []probe.Verdict{
		{Reachable: false, FailureClass: probe.FailureConnect},
	}}
	scannerFake := &fakeScanner{}
	stationFake := &fakeStation{activeSSID: "Home"}
	ap := &fakeAP{enableOK: true}
	o := newOrchestrator(prober, scannerFake, stationFake, ap)

	snapshot := config.Snapshot{
		Onboarded:  true,
		Candidates: []config.Candidate{{SSID: "Home"}},
	}

	next := o.Tick(context.Background(), snapshot, state.State{Mode: state.ModeStation, ActiveSSID: "Home"})
	if next.Mode != state.ModeAccessPoint {
		t.Fatalf("expected ap fallback, got %s", next.Mode)
	}
	if stationFake.disconnects == 0 {
		t.Fatal("unreachable station must be disconnected before failover")
	}
	if ap.enables != 1 {
		t.Fatalf("expected ap enabled once, got %d", ap.enables)
	}
}

func TestTick_APActiveRecoversToStation(t *testing.T) {
	prober := &fakeProber{}
	scannerFake := &fakeScanner{visible: visible("Home")}
	stationFake := &fakeStation{}
	ap := &fakeAP{active: true, enableOK: true}
	o := newOrchestrator(prober, scannerFake, stationFake, ap)

	snapshot := config.Snapshot{
		Onboarded:  true,
		Candidates: []config.Candidate{{SSID: "Home"}},
	}

	next := o.Tick(context.Background(), snapshot, state.State{Mode: state.ModeAccessPoint, ActiveSSID: accesspoint.SSID})
	if next.Mode != state.ModeStation || next.ActiveSSID != "Home" {
		t.Fatalf("expected recovery to Station(Home), got %s(%s)", next.Mode, next.ActiveSSID)
	}
}

func TestTick_APActiveFailedCandidateReenablesAP(t *testing.T) {
	// A visible candidate that fails to associate tears the access point
	// down on the way in; the fallback must be broadcasting again by the
	// end of the tick, not merely recorded as the current mode.
	prober := &fakeProber{}
	scannerFake := &fakeScanner{visible: visible("Home")}
	ap := &fakeAP{active: true, enableOK: true}
	stationFake := &fakeStation{
		outcomes: map[string]station.Outcome{"Home": station.ActivationFailed},
		ap:       ap,
	}
	o := newOrchestrator(prober, scannerFake, stationFake, ap)

	snapshot := config.Snapshot{
		Onboarded:  true,
		Candidates: []config.Candidate{{SSID: "Home", Password: "pw"}},
	}

	next := o.Tick(context.Background(), snapshot, state.State{Mode: state.ModeAccessPoint, ActiveSSID: accesspoint.SSID})
	if next.Mode != state.ModeAccessPoint || next.ActiveSSID != accesspoint.SSID {
		t.Fatalf("expected to remain on the access point, got %s(%s)", next.Mode, next.ActiveSSID)
	}
	if ap.enables != 1 {
		t.Fatalf("expected the access point to be re-enabled, got %d enables", ap.enables)
	}
	if !ap.active {
		t.Fatal("access point must be broadcasting after the failed candidate")
	}
}

func TestTick_ManagerUnavailableStopsCandidateLoop(t *testing.T) {
	prober := &fakeProber{}
	scannerFake := &fakeScanner{visible: visible("Home", "Office")}
	stationFake := &fakeStation{outcomes: map[string]station.Outcome{
		"Home": station.ManagerUnavailable,
	}}
	ap := &fakeAP{enableOK: true}
	o := newOrchestrator(prober, scannerFake, stationFake, ap)

	snapshot := config.Snapshot{
		Onboarded: true,
		Candidates: []config.Candidate{
			{SSID: "Home"},
			{SSID: "Office"},
		},
	}

	o.Tick(context.Background(), snapshot, state.State{Mode: state.ModeUnknown})
	if len(stationFake.connects) != 1 {
		t.Fatalf("manager failure must stop the candidate loop, got %v", stationFake.connects)
	}
}

func TestTick_APFallbackFailureYieldsDisconnected(t *testing.T) {
	prober := &fakeProber{}
	scannerFake := &fakeScanner{}
	stationFake := &fakeStation{}
	ap := &fakeAP{enableOK: false}
	o := newOrchestrator(prober, scannerFake, stationFake, ap)

	snapshot := config.Snapshot{Onboarded: true}

	next := o.Tick(context.Background(), snapshot, state.State{Mode: state.ModeUnknown})
	if next.Mode != state.ModeDisconnected {
		t.Fatalf("expected disconnected when ap fallback fails, got %s", next.Mode)
	}
	if next.ActiveSSID != "" {
		t.Fatalf("disconnected state must carry no ssid, got %q", next.ActiveSSID)
	}
	if !next.Valid() {
		t.Fatalf("state invariant violated: %+v", next)
	}
}

func TestTick_ResultAlwaysSatisfiesInvariant(t *testing.T) {
	snapshots := []config.Snapshot{
		{},
		{Onboarded: true},
		{Onboarded: true, Candidates: []config.Candidate{{SSID: "Home"}}},
	}
	aps := []*fakeAP{{enableOK: true}, {enableOK: false}}

	for _, snapshot := range snapshots {
		for _, apTemplate := range aps {
			ap := &fakeAP{enableOK: apTemplate.enableOK}
			o := newOrchestrator(&fakeProber{}, &fakeScanner{}, &fakeStation{}, ap)
			next := o.Tick(context.Background(), snapshot, state.State{Mode: state.ModeUnknown})
			if !next.Valid() {
				t.Fatalf("invariant violated for snapshot %+v, ap %+v: %+v", snapshot, ap, next)
			}
		}
	}
}

func TestTick_ClockInjection(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	prober := &fakeProber{}
	scannerFake := &fakeScanner{visible: visible("Home")}
	stationFake := &fakeStation{}
	ap := &fakeAP{}
	o := New(prober, scannerFake, stationFake, ap, zerolog.Nop(),
		WithSettleDelay(0), WithClock(func() time.Time { return fixed }))

	snapshot := config.Snapshot{
		Onboarded:  true,
		Candidates: []config.Candidate{{SSID: "Home"}},
	}

	next := o.Tick(context.Background(), snapshot, state.State{Mode: state.ModeUnknown})
	if next.LastProbe != fixed.Unix() {
		t.Fatalf("expected probe timestamp %d, got %d", fixed.Unix(), next.LastProbe)
	}
}
