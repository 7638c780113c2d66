package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"faceattend/internal/app"
	"faceattend/internal/config"
)

var (
	facesDir   string
	ledgerPath string
	skipFaces  bool
)

var rootCmd = &cobra.Command{
	Use:   "attendctl",
	Short: "Face recognition attendance from the command line",
	Long: `attendctl enrolls reference photos into the face gallery, takes
attendance from captured images and prints or exports the attendance ledger.

Paths and the face encoder are read from the same environment variables
as the API server (FACES_DIR, LEDGER_PATH, FACE_ENCODER, ...).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&facesDir, "faces", "", "Gallery directory (overrides FACES_DIR)")
	rootCmd.PersistentFlags().StringVar(&ledgerPath, "ledger", "", "Attendance CSV file (overrides LEDGER_PATH)")
	rootCmd.PersistentFlags().BoolVar(&skipFaces, "skip-faces", false, "Use hash-derived vectors instead of a face encoder")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// openApp builds the application from the environment and the persistent flags.
func openApp() (*app.App, error) {
	cfg := config.Load()
	if facesDir != "" {
		cfg.FacesDir = facesDir
	}
	if ledgerPath != "" {
		cfg.LedgerPath = ledgerPath
	}
	if skipFaces {
		cfg.FaceSkip = true
	}
	// events from the CLI are only useful when someone can consume them
	if cfg.QueueBackend != "redis" {
		cfg.QueueBackend = "memory"
	}
	return app.New(cfg)
}
