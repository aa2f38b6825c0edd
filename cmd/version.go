package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags).
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("spelhyllan %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

		if key := apiKey(); key != "" {
			fmt.Printf("API key: %s...%s (configured)\n", key[:4], key[len(key)-4:])
		} else {
			fmt.Println("API key: not set (export GEMINI_API_KEY=your-api-key)")
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func apiKey() string {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	if len(key) < 8 {
		return ""
	}
	return key
}
