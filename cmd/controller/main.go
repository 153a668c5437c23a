// Command controller is the client controller. Env prefix
// CLIENT_CONTROLLER.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scalable-server/internal/cliapp"
	"scalable-server/internal/controller"
	"scalable-server/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Client controller: broadcasts start/stop to worker clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runController(v)
		},
	}

	flags := cmd.Flags()
	flags.IntP("listen_port", "p", 5000, "port to listen for worker check-ins on")
	flags.StringP("server_ip", "s", "127.0.0.1", "server IPv4 address to broadcast")
	flags.IntP("server_port", "P", 5000, "server TCP port to broadcast")
	flags.StringP("data", "d", "", "path to the data file to broadcast as the workload blob")
	flags.IntP("duration", "t", 15, "test duration in seconds")

	if err := cliapp.BindFlags(cmd, v, "CLIENT_CONTROLLER"); err != nil {
		panic(err)
	}

	return cmd
}

func runController(v *viper.Viper) error {
	cfg := controller.Config{
		ListenPort: v.GetInt("listen_port"),
		ServerIP:   v.GetString("server_ip"),
		ServerPort: v.GetInt("server_port"),
		DataPath:   v.GetString("data"),
		Duration:   time.Duration(v.GetInt("duration")) * time.Second,
	}

	log := logger.New(os.Stderr, logrus.InfoLevel)
	return controller.Run(cfg, log)
}
