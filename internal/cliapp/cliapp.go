// Package cliapp wires github.com/spf13/cobra and github.com/spf13/viper
// together for the three binaries in this repository: env-prefixed flag
// binding, nothing more.
package cliapp

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags binds every flag on cmd's flag set into v, and configures v to
// also read envPrefix_-style environment variables.
func BindFlags(cmd *cobra.Command, v *viper.Viper, envPrefix string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(f.Name, f)
	})
	return bindErr
}
