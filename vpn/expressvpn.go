package vpn

import (
	"errors"
	"log"
	"os/exec"
	"strings"
	"time"

	"car_scrooper/config"
)

var (
	ErrNotConnected = errors.New("VPN not connected")
	ErrConnectFail  = errors.New("failed to connect VPN")
)

// ExpressVPN shells out to expressvpnctl. The site rate-limits and blocks
// datacenter IPs aggressively, so scraping can be gated on a live tunnel.
type ExpressVPN struct {
	cfg *config.VPNConfig
}

func NewExpressVPN(cfg *config.VPNConfig) *ExpressVPN {
	return &ExpressVPN{cfg: cfg}
}

func (v *ExpressVPN) IsConnected() bool {
	out, err := exec.Command("expressvpnctl", "status").Output()
	if err != nil {
		return false
	}
	status := strings.ToLower(string(out))
	return strings.Contains(status, "connected") && !strings.Contains(status, "disconnected")
}

func (v *ExpressVPN) Connect() error {
	if v.IsConnected() {
		return nil
	}

	if !v.cfg.AutoConnect {
		return ErrNotConnected
	}

	region := v.cfg.Region
	if region == "" {
		region = "smart"
	}

	log.Printf("VPN: connecting to %s", region)
	if err := exec.Command("expressvpnctl", "connect", region).Run(); err != nil {
		return ErrConnectFail
	}

	for i := 0; i < 30; i++ {
		time.Sleep(time.Second)
		if v.IsConnected() {
			return nil
		}
	}

	return ErrConnectFail
}

// EnsureConnected is the pre-scrape guard: no-op when the tunnel is up,
// otherwise tries an auto-connect.
func (v *ExpressVPN) EnsureConnected() error {
	if v.IsConnected() {
		return nil
	}
	return v.Connect()
}

func (v *ExpressVPN) Disconnect() error {
	return exec.Command("expressvpnctl", "disconnect").Run()
}

func (v *ExpressVPN) Status() (string, error) {
	out, err := exec.Command("expressvpnctl", "status").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
