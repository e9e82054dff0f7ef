package camera

// Preset names for common configurations
const (
	PresetDefault  = "default"
	PresetLegacy   = "legacy"
	Preset1080p    = "1080p"
	PresetLowLight = "lowlight"
	PresetExternal = "external"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:  DefaultConfig(),
		PresetLegacy:   LegacyConfig(),
		Preset1080p:    HD1080Config(),
		PresetLowLight: LowLightConfig(),
		PresetExternal: ExternalConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLegacy,
		Preset1080p,
		PresetLowLight,
		PresetExternal,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	presets := Presets()
	if cfg, ok := presets[name]; ok {
		return &cfg
	}
	return nil
}

// HD1080Config returns 1080p configuration.
// More iris pixels when the user sits far from the camera.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	cfg.Framerate = 30
	return cfg
}

// LowLightConfig returns configuration for dim rooms.
// Leaves exposure to the driver and lowers the frame rate so it can expose longer.
func LowLightConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 30
	cfg.AutoExposure = 0
	cfg.Brightness = 160
	return cfg
}

// ExternalConfig prefers a USB camera at index 1 over the built-in one.
func ExternalConfig() Config {
	cfg := DefaultConfig()
	cfg.Device = 1
	return cfg
}
