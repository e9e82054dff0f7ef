// Package config provides environment helpers for go-gaze commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults used when the environment is silent.
const (
	DefaultMeshURL = "ws://127.0.0.1:8765/mesh"
	DefaultWebPort = "8080"
)

// LoadDotEnv loads variables from .env (or the given files) without overriding
// the process environment. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Camera returns the capture index from GAZE_CAMERA, or def when unset.
// "auto" selects probing.
func Camera(def int) (int, error) {
	v := os.Getenv("GAZE_CAMERA")
	switch v {
	case "":
		return def, nil
	case "auto":
		return -1, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("GAZE_CAMERA: %w", err)
	}
	return i, nil
}

// MeshURL returns the face mesh service URL from GAZE_MESH_URL.
func MeshURL() string {
	return getenv("GAZE_MESH_URL", DefaultMeshURL)
}

// WebPort returns the dashboard port from GAZE_WEB_PORT.
func WebPort() string {
	return getenv("GAZE_WEB_PORT", DefaultWebPort)
}

// TuningFile returns the JSON tuning file path from GAZE_TUNING_FILE, empty if unset.
func TuningFile() string {
	return os.Getenv("GAZE_TUNING_FILE")
}

// MQTTBroker returns the event broker URL from GAZE_MQTT_BROKER, empty when events are off.
func MQTTBroker() string {
	return os.Getenv("GAZE_MQTT_BROKER")
}

// MQTTTopic returns the topic prefix from GAZE_MQTT_TOPIC.
func MQTTTopic() string {
	return os.Getenv("GAZE_MQTT_TOPIC")
}

// LogLevel returns GAZE_LOG_LEVEL, defaulting to info.
func LogLevel() string {
	return getenv("GAZE_LOG_LEVEL", "info")
}

// Bool reads a boolean variable. Unset or unparsable values yield def.
func Bool(name string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	if err != nil {
		return def
	}
	return v
}

func getenv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
