package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brushhour/fieldclock/internal/model"
	"github.com/brushhour/fieldclock/internal/sites"
)

var sitesFile string

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Manage job site definitions",
}

var sitesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import job sites from a YAML seed or a boundary shapefile",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sites"); err != nil {
			return err
		}
		if sitesFile == "" {
			return fmt.Errorf("--file is required")
		}

		e, err := initEnv(cmd.Context(), model.LocationReading{})
		if err != nil {
			return err
		}
		defer e.Close()

		var n int
		if strings.HasSuffix(sitesFile, ".shp") {
			n, err = sites.ImportShapefile(cmd.Context(), e.Store, sitesFile)
		} else {
			n, err = sites.ImportYAML(cmd.Context(), e.Store, sitesFile)
		}
		if err != nil {
			return err
		}
		cmd.Printf("imported %d site(s)\n", n)
		return nil
	},
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured job sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context(), model.LocationReading{})
		if err != nil {
			return err
		}
		defer e.Close()

		all, err := e.Store.ListJobSites(cmd.Context())
		if err != nil {
			return err
		}
		if len(all) == 0 {
			cmd.Println("no job sites configured")
			return nil
		}
		for _, s := range all {
			cmd.Printf("  %-12s %-30s fence %.0fm @ %.5f,%.5f\n",
				s.ID, s.Name, s.Geofence.Radius(), s.Geofence.CenterLat, s.Geofence.CenterLng)
		}
		return nil
	},
}

func init() {
	sitesImportCmd.Flags().StringVar(&sitesFile, "file", "", "path to sites.yaml or boundary .shp")
	sitesCmd.AddCommand(sitesImportCmd, sitesListCmd)
	rootCmd.AddCommand(sitesCmd)
}
