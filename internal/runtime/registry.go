package runtime

import (
	"strings"
	"time"

	"github.com/sentra/siem/internal/config"
	"github.com/sentra/siem/internal/detect"
)

// DefaultDetectors builds the full rule set from configuration. Thresholds,
// windows and dedupe intervals honor the THRESHOLD_/WINDOW_/DEDUPE_<RULE>
// environment overrides; everything else uses the shipped defaults.
func DefaultDetectors(cfg *config.Config) ([]detect.Detector, error) {
	wl, err := detect.NewWhitelist(cfg.Detection.WhitelistCIDRs)
	if err != nil {
		return nil, err
	}
	cadence := cfg.Detection.ScanInterval.Std()

	return []detect.Detector{
		detect.NewFailedLogin(detect.FailedLoginConfig{
			Threshold: config.ThresholdOverride("FAILED_LOGIN", 5),
			Window:    config.WindowOverride("FAILED_LOGIN", 5*time.Minute),
			Dedupe:    config.DedupeOverride("FAILED_LOGIN", 5*time.Minute),
		}, wl),

		detect.NewDenied(detect.DeniedConfig{
			Threshold: config.ThresholdOverride("FIREWALL_DENIED", 5),
			Window:    config.WindowOverride("FIREWALL_DENIED", 5*time.Minute),
			Dedupe:    config.DedupeOverride("FIREWALL_DENIED", 5*time.Minute),
			Cadence:   cadence,
		}, wl),

		detect.NewAllowedBlocked(detect.AllowedBlockedConfig{
			DenyThreshold: config.ThresholdOverride("ALLOWED_BLOCKED", 3),
			Window:        config.WindowOverride("ALLOWED_BLOCKED", 5*time.Minute),
			Dedupe:        config.DedupeOverride("ALLOWED_BLOCKED", 5*time.Minute),
			Cadence:       cadence,
		}, wl),

		detect.NewFlood(detect.FloodConfig{
			Threshold: config.ThresholdOverride("FIREWALL_FLOOD", 1000),
			Window:    config.WindowOverride("FIREWALL_FLOOD", 60*time.Second),
			Dedupe:    config.DedupeOverride("FIREWALL_FLOOD", 5*time.Minute),
			Cadence:   cadence,
		}, wl),

		detect.NewPortScan(detect.PortScanConfig{
			PerDstThreshold:      config.ThresholdOverride("PORT_SCAN", 20),
			PerDstWindow:         config.WindowOverride("PORT_SCAN", 60*time.Second),
			DistributedThreshold: config.ThresholdOverride("PORT_SCAN_DISTRIBUTED", 50),
			DistributedWindow:    config.WindowOverride("PORT_SCAN_DISTRIBUTED", 300*time.Second),
			CrossDstThreshold:    config.ThresholdOverride("PORT_SCAN_CROSS_DST", 100),
			CrossDstWindow:       config.WindowOverride("PORT_SCAN_CROSS_DST", 600*time.Second),
			StealthThreshold:     config.ThresholdOverride("PORT_SCAN_STEALTH", 10),
			StealthWindow:        config.WindowOverride("PORT_SCAN_STEALTH", 3600*time.Second),
			StealthMinUnique:     config.ThresholdOverride("PORT_SCAN_STEALTH_MIN_UNIQUE", 5),
			Dedupe:               config.DedupeOverride("PORT_SCAN", 5*time.Minute),
			Cadence:              cadence,
		}, wl),

		detect.NewEndpointScan(detect.EndpointScanConfig{
			Threshold: config.ThresholdOverride("ENDPOINT_SCAN", 5),
			Window:    config.WindowOverride("ENDPOINT_SCAN", 5*time.Minute),
			Dedupe:    config.DedupeOverride("ENDPOINT_SCAN", 5*time.Minute),
			Cadence:   cadence,
		}, wl),

		detect.NewSQLInjection(detect.WebAttackConfig{
			Threshold: config.ThresholdOverride("SQLI", 1),
			Window:    config.WindowOverride("SQLI", 5*time.Minute),
			Dedupe:    config.DedupeOverride("SQLI", 5*time.Minute),
			Cadence:   cadence,
		}, wl),

		detect.NewXSS(detect.WebAttackConfig{
			Threshold: config.ThresholdOverride("XSS", 3),
			Window:    config.WindowOverride("XSS", 5*time.Minute),
			Dedupe:    config.DedupeOverride("XSS", 5*time.Minute),
			Cadence:   cadence,
		}, wl),

		detect.NewAdminCreate(detect.AdminCreateConfig{
			KnownAdmins: cfg.Detection.KnownAdmins,
			Window:      config.WindowOverride("ADMIN_CREATION", 5*time.Minute),
			Dedupe:      config.DedupeOverride("ADMIN_CREATION", time.Hour),
			Cadence:     cadence,
		}, wl),

		detect.NewFileActivity(detect.FileActivityConfig{
			FileThreshold:    config.ThresholdOverride("FILE_ACTIVITY", 20),
			Window:           config.WindowOverride("FILE_ACTIVITY", 5*time.Minute),
			EncryptionDedupe: config.DedupeOverride("FILE_ACTIVITY", time.Hour),
			UploadDedupe:     config.DedupeOverride("FILE_UPLOAD", 5*time.Minute),
			Cadence:          cadence,
		}, wl),

		detect.NewProtocolMisuse(detect.ProtocolMisuseConfig{
			Threshold: config.ThresholdOverride("PROTOCOL_MISUSE", 3),
			Window:    config.WindowOverride("PROTOCOL_MISUSE", 5*time.Minute),
			Dedupe:    config.DedupeOverride("PROTOCOL_MISUSE", 5*time.Minute),
			Cadence:   cadence,
		}, wl),
	}, nil
}

// FilterByName narrows a detector set to the named slugs (comma-separated,
// case-insensitive). An empty selector returns the set unchanged.
func FilterByName(ds []detect.Detector, selector string) []detect.Detector {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return ds
	}
	want := make(map[string]bool)
	for _, name := range strings.Split(selector, ",") {
		want[strings.ToLower(strings.TrimSpace(name))] = true
	}
	var out []detect.Detector
	for _, d := range ds {
		if want[d.Name()] {
			out = append(out, d)
		}
	}
	return out
}
