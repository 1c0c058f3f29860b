// File: cmd/templates.go
package cmd

import (
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/draugr-dev/overseer-cli/internal/config"
	"github.com/draugr-dev/overseer-cli/internal/observability"
	"github.com/draugr-dev/overseer-cli/internal/templates"
)

// newTemplatesCmd groups the template library management commands.
func newTemplatesCmd() *cobra.Command {
	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "Manages the versioned element template library",
	}
	templatesCmd.AddCommand(newTemplatesPutCmd())
	templatesCmd.AddCommand(newTemplatesGetCmd())
	templatesCmd.AddCommand(newTemplatesListCmd())
	return templatesCmd
}

// openLibrary unmarshals the current config and opens the template store.
func openLibrary(cmd *cobra.Command) (*templates.Library, error) {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	validator := templates.Validator{MinDetailStdDev: cfg.Templates.MinDetailStdDev}
	return templates.Open(cmd.Context(), cfg.Templates.DBPath, validator, observability.GetLogger())
}

func newTemplatesPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <app> <name> <image.png>",
		Short: "Registers a new version of an element template",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, name, path := args[0], args[1], args[2]

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open template image: %w", err)
			}
			defer f.Close()
			img, err := png.Decode(f)
			if err != nil {
				return fmt.Errorf("failed to decode %q as PNG: %w", path, err)
			}

			lib, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer lib.Close()

			tpl, err := lib.Put(cmd.Context(), app, name, img)
			if err != nil {
				return err
			}
			observability.GetLogger().Info("Template stored",
				zap.String("app", tpl.App),
				zap.String("name", tpl.Name),
				zap.Int("version", tpl.Version),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s stored as version %d\n", tpl.App, tpl.Name, tpl.Version)
			return nil
		},
	}
}

func newTemplatesGetCmd() *cobra.Command {
	var version int

	getCmd := &cobra.Command{
		Use:   "get <app> <name> <out.png>",
		Short: "Exports a template image, newest version by default",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, name, outPath := args[0], args[1], args[2]

			lib, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer lib.Close()

			var tpl templates.Template
			if version > 0 {
				tpl, err = lib.GetVersion(cmd.Context(), app, name, version)
			} else {
				tpl, err = lib.Get(cmd.Context(), app, name)
			}
			if err != nil {
				return err
			}

			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer out.Close()
			if err := png.Encode(out, tpl.Image); err != nil {
				return fmt.Errorf("failed to encode template image: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s v%d written to %s\n", tpl.App, tpl.Name, tpl.Version, outPath)
			return nil
		},
	}

	getCmd.Flags().IntVar(&version, "version", 0, "specific version to export (default newest)")
	return getCmd
}

func newTemplatesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists the newest version of every registered template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer lib.Close()

			all, err := lib.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no templates registered")
				return nil
			}
			for _, tpl := range all {
				b := tpl.Image.Bounds()
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\tv%d\t%dx%d\t%s\n",
					tpl.App, tpl.Name, tpl.Version,
					b.Dx(), b.Dy(), tpl.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
