package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mwhite/inkling/internal/config"
	"github.com/mwhite/inkling/internal/device"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check config, secrets, and device health",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Inkling Status ===")
	fmt.Println()

	allOK := true

	// Config file
	configPath := config.DefaultConfigPath()
	fmt.Printf("Config file: %s\n", configPath)
	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("  Status: found")
	} else {
		fmt.Println("  Status: NOT FOUND (defaults in effect)")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("  Load error: %v\n", err)
		allOK = false
	}
	fmt.Println()

	// Engine
	fmt.Println("Engine:")
	if cfg != nil {
		fmt.Printf("  Model: %s\n", cfg.Engine.Model)
		if cfg.Engine.APIKey != "" {
			fmt.Println("  API key: set")
		} else {
			fmt.Println("  API key: NOT SET")
			allOK = false
		}
	}
	fmt.Println()

	// Hardware
	profile := device.Detect()
	fmt.Printf("Device: %s\n", profile)
	fmt.Printf("  Native resolution: %dx%d\n", profile.ScreenWidth(), profile.ScreenHeight())

	if err := device.NewCapture(profile).Probe(); err == nil {
		fmt.Println("  Framebuffer: reachable")
	} else {
		fmt.Printf("  Framebuffer: UNREACHABLE (%v)\n", err)
		allOK = false
	}

	if _, err := os.Stat("/dev/uinput"); err == nil {
		fmt.Println("  uinput: present")
	} else {
		fmt.Println("  uinput: ABSENT (module will be loaded at startup)")
	}

	if _, err := os.Stat(profile.TouchDevicePath()); err == nil {
		fmt.Printf("  Touch device: %s\n", profile.TouchDevicePath())
	} else {
		fmt.Printf("  Touch device: %s MISSING\n", profile.TouchDevicePath())
		allOK = false
	}
	fmt.Println()

	if allOK {
		fmt.Println("Everything looks good.")
	} else {
		fmt.Println("Some checks failed; see above.")
	}
	return nil
}
