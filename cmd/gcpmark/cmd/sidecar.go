package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/gcpmark/internal/geoinfo"
	"github.com/MeKo-Tech/gcpmark/internal/imageio"
	"github.com/MeKo-Tech/gcpmark/internal/sidecar"
)

// SidecarInfo is printed by "sidecar show".
type SidecarInfo struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	Valid    bool   `json:"valid"`
	Encoding string `json:"encoding,omitempty"`
	sidecar.Record
}

var sidecarCmd = &cobra.Command{
	Use:   "sidecar",
	Short: "Inspect and initialize annotation sidecars",
}

var sidecarShowCmd = &cobra.Command{
	Use:   "show <image|sidecar>",
	Short: "Print a decoded sidecar as JSON",
	Long: `Decode a sidecar and print its header and coordinates as JSON. Either the
image or its .txt sidecar may be given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if filepath.Ext(path) != sidecar.Extension {
			path = sidecar.PathFor(path)
		}
		loaded, err := sidecar.ReadFile(path)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(SidecarInfo{
			Path:     path,
			Exists:   loaded.Exists,
			Valid:    loaded.Valid(),
			Encoding: loaded.Encoding,
			Record:   loaded.Record,
		})
	},
}

var sidecarInitCmd = &cobra.Command{
	Use:   "init <image>...",
	Short: "Write a fresh sidecar with a geo header",
	Long: `Write a sidecar holding the standard header, built from the image EXIF and
DJI metadata, and no annotations. Images that already have a valid sidecar
are left alone unless --force is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		geo := geoinfo.NewExifProvider()

		for _, image := range args {
			if !imageio.IsSupported(image) {
				return fmt.Errorf("unsupported image type: %s", image)
			}
			path := sidecar.PathFor(image)
			loaded, err := sidecar.ReadFile(path)
			if err != nil {
				return err
			}
			if loaded.Valid() && !force {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "kept %s\n", path)
				continue
			}
			header := sidecar.HeaderFor(filepath.Base(image), geo.Extract(image))
			if err := sidecar.Initialize(path, header); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sidecarCmd)
	sidecarCmd.AddCommand(sidecarShowCmd, sidecarInitCmd)
	sidecarInitCmd.Flags().BoolP("force", "f", false, "overwrite valid sidecars")
}
