package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"userprofile/internal/recipe"
)

func (c *CLI) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print it with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}

func (c *CLI) newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Validate and print the dependency manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := recipe.Default()
			if path, _ := cmd.Flags().GetString("file"); path != "" {
				var err error
				if d, err = recipe.Load(path); err != nil {
					return err
				}
			}
			if err := d.Validate(); err != nil {
				return fmt.Errorf("invalid manifest:\n%w", err)
			}
			reqs, err := d.Requirements()
			if err != nil {
				return err
			}
			layout, err := d.ResolveLayout()
			if err != nil {
				return err
			}
			buildType, _ := cmd.Flags().GetString("build-type")

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "settings:   %v\n", d.Settings)
			_, _ = fmt.Fprintf(w, "generators: %v\n", d.Generators)
			_, _ = fmt.Fprintln(w, "requires:")
			for _, r := range reqs {
				_, _ = fmt.Fprintf(w, "  %s\n", r)
			}
			_, _ = fmt.Fprintf(w, "layout:     %s (build: %s, generators: %s)\n",
				layout.Name, layout.BuildDir(buildType), layout.GeneratorsDir(buildType))
			return nil
		},
	}
	cmd.Flags().String("file", "", "Manifest to check instead of the built-in one")
	cmd.Flags().String("build-type", "Release", "Build type used to resolve output directories")
	return cmd
}
