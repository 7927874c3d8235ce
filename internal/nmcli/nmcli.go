package nmcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultCommandTimeout = 45 * time.Second

// Commander executes an external command and reports its stdout and exit code.
// A non-zero exit is not an error; err is reserved for failures to run the
// command at all.
type Commander interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, code int, err error)
}

type execCommander struct {
	timeout time.Duration
}

// NewExecCommander returns a Commander backed by os/exec with a per-call
// timeout guard.
func NewExecCommander(timeout time.Duration) Commander {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &execCommander{timeout: timeout}
}

func (c *execCommander) Run(ctx context.Context, name string, args ...string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), 0, nil
	}

	if ctx.Err() != nil {
		return stdout.String(), codeTimeout, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), exitErr.ExitCode(), nil
	}
	return "", 0, fmt.Errorf("run %s: %w", name, err)
}

// ConnectivityState is NetworkManager's own connectivity verdict.
type ConnectivityState string

const (
	ConnectivityFull    ConnectivityState = "full"
	ConnectivityLimited ConnectivityState = "limited"
	ConnectivityPortal  ConnectivityState = "portal"
	ConnectivityNone    ConnectivityState = "none"
	ConnectivityUnknown ConnectivityState = "unknown"
)

// ActiveConnection is one row of `connection show --active`.
type ActiveConnection struct {
	Name   string
	Type   string
	Device string
}

// Device is one row of `nmcli device`.
type Device struct {
	Name  string
	Type  string
	State string
}

// APProfile describes the fixed access-point connection definition handed to
// AddAPProfile.
type APProfile struct {
	Name    string
	SSID    string
	Band    string
	Channel int
	Address string
}

// Client wraps nmcli invocations for a single wireless interface. All parsing
// of nmcli output and exit codes lives here.
type Client struct {
	run    Commander
	iface  string
	logger zerolog.Logger
}

// New constructs a Client. iface may be empty, in which case nmcli picks the
// device itself.
func New(run Commander, iface string, logger zerolog.Logger) *Client {
	if run == nil {
		run = NewExecCommander(defaultCommandTimeout)
	}
	return &Client{run: run, iface: iface, logger: logger}
}

// Interface returns the managed wireless interface name, if configured.
func (c *Client) Interface() string {
	return c.iface
}

// Available reports whether NetworkManager answers at all.
func (c *Client) Available(ctx context.Context) bool {
	_, code, err := c.run.Run(ctx, "nmcli", "-t", "general", "status")
	return err == nil && code == codeSuccess
}

// Connectivity asks NetworkManager for its own connectivity verdict, forcing a
// fresh check.
func (c *Client) Connectivity(ctx context.Context) (ConnectivityState, error) {
	out, code, err := c.run.Run(ctx, "nmcli", "-t", "networking", "connectivity", "check")
	if err != nil {
		return ConnectivityUnknown, err
	}
	if code != codeSuccess {
		return ConnectivityUnknown, fmt.Errorf("networking connectivity: %s", classify(code))
	}
	switch state := ConnectivityState(strings.TrimSpace(out)); state {
	case ConnectivityFull, ConnectivityLimited, ConnectivityPortal, ConnectivityNone:
		return state, nil
	default:
		return ConnectivityUnknown, nil
	}
}

// RescanWifi requests a fresh radio scan. Best effort; the caller may list
// networks regardless.
func (c *Client) RescanWifi(ctx context.Context) error {
	args := []string{"device", "wifi", "rescan"}
	args = c.withIface(args)
	_, code, err := c.run.Run(ctx, "nmcli", args...)
	if err != nil {
		return err
	}
	if code != codeSuccess {
		return fmt.Errorf("wifi rescan: %s", classify(code))
	}
	return nil
}

// VisibleSSIDs lists the SSIDs currently visible on the managed interface.
func (c *Client) VisibleSSIDs(ctx context.Context) ([]string, error) {
	args := []string{"-t", "-f", "SSID", "device", "wifi", "list"}
	args = c.withIface(args)
	out, code, err := c.run.Run(ctx, "nmcli", args...)
	if err != nil {
		return nil, err
	}
	if code != codeSuccess {
		return nil, fmt.Errorf("wifi list: %s", classify(code))
	}

	var ssids []string
	for _, line := range strings.Split(out, "\n") {
		ssid := unescapeTerse(strings.TrimSpace(line))
		if ssid == "" || ssid == "--" {
			continue
		}
		ssids = append(ssids, ssid)
	}
	return ssids, nil
}

// SavedWifiProfiles maps saved wireless profile names to their configured
// SSIDs.
func (c *Client) SavedWifiProfiles(ctx context.Context) (map[string]string, error) {
	out, code, err := c.run.Run(ctx, "nmcli", "-t", "-f", "NAME,TYPE", "connection", "show")
	if err != nil {
		return nil, err
	}
	if code != codeSuccess {
		return nil, fmt.Errorf("connection show: %s", classify(code))
	}

	profiles := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(line)
		if len(fields) != 2 || !strings.Contains(fields[1], "wireless") {
			continue
		}
		name := fields[0]
		ssid, err := c.ProfileField(ctx, name, "802-11-wireless.ssid")
		if err != nil {
			c.logger.Debug().Err(err).Str("profile", name).Msg("skipping unreadable profile")
			continue
		}
		if ssid != "" {
			profiles[name] = ssid
		}
	}
	return profiles, nil
}

// ProfileField reads a single settings field from a saved profile.
func (c *Client) ProfileField(ctx context.Context, name, field string) (string, error) {
	out, code, err := c.run.Run(ctx, "nmcli", "-g", field, "connection", "show", "id", name)
	if err != nil {
		return "", err
	}
	if code != codeSuccess {
		return "", fmt.Errorf("show %s of %q: %s", field, name, classify(code))
	}
	return strings.TrimSpace(out), nil
}

// ProfileExists reports whether a saved profile with the given name exists.
func (c *Client) ProfileExists(ctx context.Context, name string) (bool, error) {
	_, code, err := c.run.Run(ctx, "nmcli", "-t", "-f", "connection.id", "connection", "show", "id", name)
	if err != nil {
		return false, err
	}
	switch classify(code) {
	case Success:
		return true, nil
	case NotFound:
		return false, nil
	default:
		return false, fmt.Errorf("connection show %q: %s", name, classify(code))
	}
}

// ActivateProfile brings up a saved profile, waiting at most wait for
// activation.
func (c *Client) ActivateProfile(ctx context.Context, name string, wait time.Duration) Outcome {
	args := []string{"-w", waitSeconds(wait), "connection", "up", "id", name}
	return c.outcomeOf(ctx, args)
}

// ConnectWifi creates and activates an ephemeral connection to an SSID, using
// the supplied password when non-empty.
func (c *Client) ConnectWifi(ctx context.Context, ssid, password string, wait time.Duration) Outcome {
	args := []string{"-w", waitSeconds(wait), "device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	args = c.withIface(args)
	return c.outcomeOf(ctx, args)
}

// DeactivateProfile takes down an active connection by profile name.
func (c *Client) DeactivateProfile(ctx context.Context, name string) Outcome {
	return c.outcomeOf(ctx, []string{"connection", "down", "id", name})
}

// DeleteProfile removes a saved profile.
func (c *Client) DeleteProfile(ctx context.Context, name string) Outcome {
	return c.outcomeOf(ctx, []string{"connection", "delete", "id", name})
}

// AddAPProfile creates the access-point profile. Open security and a shared
// IPv4 subnet are deliberate; IPv6 is disabled.
func (c *Client) AddAPProfile(ctx context.Context, profile APProfile) Outcome {
	args := []string{"connection", "add", "type", "wifi", "con-name", profile.Name,
		"autoconnect", "no", "ssid", profile.SSID,
		"802-11-wireless.mode", "ap",
		"802-11-wireless.band", profile.Band,
		"802-11-wireless.channel", strconv.Itoa(profile.Channel),
		"ipv4.method", "shared",
		"ipv4.addresses", profile.Address,
		"ipv6.method", "disabled",
	}
	if c.iface != "" {
		args = append(args, "ifname", c.iface)
	}
	return c.outcomeOf(ctx, args)
}

// ActiveConnections lists currently active connections.
func (c *Client) ActiveConnections(ctx context.Context) ([]ActiveConnection, error) {
	out, code, err := c.run.Run(ctx, "nmcli", "-t", "-f", "NAME,TYPE,DEVICE", "connection", "show", "--active")
	if err != nil {
		return nil, err
	}
	if code != codeSuccess {
		return nil, fmt.Errorf("connection show --active: %s", classify(code))
	}

	var active []ActiveConnection
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(line)
		if len(fields) != 3 || fields[0] == "" {
			continue
		}
		active = append(active, ActiveConnection{Name: fields[0], Type: fields[1], Device: fields[2]})
	}
	return active, nil
}

// Devices lists NetworkManager-managed devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	out, code, err := c.run.Run(ctx, "nmcli", "-t", "-f", "DEVICE,TYPE,STATE", "device")
	if err != nil {
		return nil, err
	}
	if code != codeSuccess {
		return nil, fmt.Errorf("device list: %s", classify(code))
	}

	var devices []Device
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(line)
		if len(fields) != 3 || fields[0] == "" {
			continue
		}
		devices = append(devices, Device{Name: fields[0], Type: fields[1], State: fields[2]})
	}
	return devices, nil
}

// RadioEnabled reports whether the wifi radio is powered on.
func (c *Client) RadioEnabled(ctx context.Context) (bool, error) {
	out, code, err := c.run.Run(ctx, "nmcli", "radio", "wifi")
	if err != nil {
		return false, err
	}
	if code != codeSuccess {
		return false, fmt.Errorf("radio wifi: %s", classify(code))
	}
	return strings.TrimSpace(out) == "enabled", nil
}

// EnableRadio powers the wifi radio on.
func (c *Client) EnableRadio(ctx context.Context) error {
	_, code, err := c.run.Run(ctx, "nmcli", "radio", "wifi", "on")
	if err != nil {
		return err
	}
	if code != codeSuccess {
		return fmt.Errorf("radio wifi on: %s", classify(code))
	}
	return nil
}

func (c *Client) outcomeOf(ctx context.Context, args []string) Outcome {
	_, code, err := c.run.Run(ctx, "nmcli", args...)
	if err != nil {
		c.logger.Warn().Err(err).Strs("args", args).Msg("nmcli invocation failed")
		return NotRunning
	}
	outcome := classify(code)
	if outcome != Success {
		c.logger.Debug().Int("exit_code", code).Str("outcome", outcome.String()).
			Strs("args", args).Msg("nmcli returned non-zero")
	}
	return outcome
}

func (c *Client) withIface(args []string) []string {
	if c.iface == "" {
		return args
	}
	return append(args, "ifname", c.iface)
}

func waitSeconds(wait time.Duration) string {
	secs := int(wait / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// splitTerse splits one line of `nmcli -t` output on unescaped colons.
func splitTerse(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var fields []string
	var current strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, current.String())
	return fields
}

func unescapeTerse(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var out strings.Builder
	escaped := false
	for _, r := range s {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}
		out.WriteRune(r)
		escaped = false
	}
	return out.String()
}
