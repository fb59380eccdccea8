// Package commands implements the userprofile command line.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"userprofile/internal/build"
	"userprofile/internal/config"
)

// DefaultConfigPath is read when --config is not given; a missing file
// leaves the defaults in place.
const DefaultConfigPath = "userprofile.yml"

// CLI represents the command line interface for userprofile.
type CLI struct {
	rootCmd    *cobra.Command
	configPath string
}

func New() *CLI {
	rootCmd := &cobra.Command{
		Use:           "userprofile",
		Short:         "User profile service fed by Kafka events",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))

	c := &CLI{rootCmd: rootCmd}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", DefaultConfigPath,
		"YAML configuration file; USERPROFILE__* variables override it")

	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newProduceCmd())
	rootCmd.AddCommand(c.newUsersCmd())
	rootCmd.AddCommand(c.newConfigCmd())
	rootCmd.AddCommand(c.newDepsCmd())
	rootCmd.AddCommand(c.newVersionCmd())
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

func (c *CLI) loadConfig() (config.ServiceConfig, error) {
	return config.Load(c.configPath)
}
