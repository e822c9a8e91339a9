// wchtools is the command-line synchronization client for a multi-tenant
// content management service: it pulls artifacts into a local working
// directory, pushes local edits back, and keeps a change-tracking store
// so repeated runs only transfer what changed.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "wchtools",
	Short: "Synchronize content artifacts with your tenant",
	Long: `wchtools synchronizes content artifacts between a local working
directory and your content management tenant.

Artifacts are organized by type (assets, content, types, layouts, sites,
pages, ...), each in its own subdirectory of the working directory. Pull
and push operate per type, transfer only modified items by default, and
report aggregate results per batch.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is <dir>/wchtools.yml)")
	pf.String("dir", ".", "local working directory")
	pf.String("url", "", "API base URL of the tenant")
	pf.String("tenant", "", "tenant id")
	pf.String("tier", "Standard", "tenant tier (Base or Standard)")
	pf.BoolP("verbose", "v", false, "verbose output")
	pf.Bool("quiet", false, "suppress prompts and non-essential output")

	viper.BindPFlag("dir", pf.Lookup("dir"))
	viper.BindPFlag("url", pf.Lookup("url"))
	viper.BindPFlag("tenant", pf.Lookup("tenant"))
	viper.BindPFlag("tier", pf.Lookup("tier"))
	viper.BindPFlag("verbose", pf.Lookup("verbose"))
	viper.BindPFlag("quiet", pf.Lookup("quiet"))
}

// initConfig reads the optional config file. Settings resolve in the
// usual order: flags over environment over file over defaults.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("wchtools")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(viper.GetString("dir"))
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("WCHTOOLS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}
