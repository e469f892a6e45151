package mpv

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform represents the operating system platform
type Platform int

const (
	PlatformLinux Platform = iota
	PlatformWindows
	PlatformWSL
	PlatformMac
)

// IPCType represents the IPC connection type
type IPCType int

const (
	IPCUnixSocket IPCType = iota
	IPCNamedPipe
	IPCTCP
)

// IPCConfig holds IPC connection configuration
type IPCConfig struct {
	Type     IPCType
	Address  string
	IsSocket bool // true for Unix sockets
}

// socketPrefix is shared by socket files and pipe names so stale ones are easy to spot.
const socketPrefix = "reel-mpv-"

// DetectPlatform detects the current platform
func DetectPlatform() Platform {
	switch runtime.GOOS {
	case "windows":
		return PlatformWindows
	case "darwin":
		return PlatformMac
	case "linux":
		if isWSL() {
			return PlatformWSL
		}
		return PlatformLinux
	default:
		return PlatformLinux
	}
}

func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	version := strings.ToLower(string(data))
	return strings.Contains(version, "microsoft") || strings.Contains(version, "wsl")
}

// GetMPVExecutable returns the mpv executable name for the platform.
// WSL uses the Linux build: gopv cannot reach Windows named pipes from inside WSL.
func GetMPVExecutable(platform Platform) string {
	if platform == PlatformWindows {
		return "mpv.exe"
	}
	return "mpv"
}

// FindMPVExecutable resolves the mpv binary, preferring an explicit override.
func FindMPVExecutable(platform Platform, override string) (string, error) {
	executable := override
	if executable == "" {
		executable = GetMPVExecutable(platform)
	}

	path, err := exec.LookPath(executable)
	if err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%s not found in PATH, install mpv or set player.mpv_path: %w", executable, err)
}

// GetIPCConfig generates a fresh IPC endpoint for the platform
func GetIPCConfig(platform Platform) (*IPCConfig, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return nil, err
	}

	switch platform {
	case PlatformLinux, PlatformMac, PlatformWSL:
		return &IPCConfig{
			Type:     IPCUnixSocket,
			Address:  filepath.Join(os.TempDir(), socketPrefix+suffix+".sock"),
			IsSocket: true,
		}, nil
	case PlatformWindows:
		return &IPCConfig{
			Type:    IPCNamedPipe,
			Address: `\\.\pipe\` + socketPrefix + suffix,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported platform %d", platform)
	}
}

func randomSuffix() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GetMPVIPCArgument returns the mpv command-line argument for IPC
func GetMPVIPCArgument(config *IPCConfig) string {
	return fmt.Sprintf("--input-ipc-server=%s", config.Address)
}

// GetGopvConnectionString returns the connection string for gopv
func GetGopvConnectionString(config *IPCConfig) string {
	if config.Type == IPCTCP {
		return "tcp://" + config.Address
	}
	return config.Address
}
