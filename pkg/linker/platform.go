package linker

import (
	"fmt"
	"runtime"
	"slices"

	"github.com/arthur-debert/elevlink/pkg/config"
)

// PlatformInfo describes where a deployment would run
type PlatformInfo struct {
	// OS is a GOOS value. Empty means the running platform.
	OS     string
	GameID string
}

func isSupported(p config.Platform, info PlatformInfo) string {
	goos := info.OS
	if goos == "" {
		goos = runtime.GOOS
	}
	if !slices.Contains(p.ElevatedPlatforms, goos) {
		return fmt.Sprintf("Not required on %s", goos)
	}
	if info.GameID != "" && slices.Contains(p.IncompatibleGames, info.GameID) {
		return fmt.Sprintf("Doesn't work with the engine of %s", info.GameID)
	}
	return ""
}
