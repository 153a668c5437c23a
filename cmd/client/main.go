// Command client is the worker client (load generator). Env prefix CLIENT_.
// A non-zero --duration selects standalone mode, zero selects controller
// mode.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scalable-server/internal/cliapp"
	"scalable-server/internal/logger"
	"scalable-server/internal/wclient"
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
		Use:   "client",
		Short: "Worker client load generator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(v)
		},
	}

	flags := cmd.Flags()
	flags.StringP("server_ip", "s", "127.0.0.1", "server IPv4 address")
	flags.StringP("controller_ip", "c", "127.0.0.1", "controller IPv4 address")
	flags.IntP("server_port", "p", 5000, "server TCP port")
	flags.IntP("controller_port", "P", 5000, "controller TCP port")
	flags.StringP("data", "d", "HELLO", "blob to send on every request")
	flags.IntP("duration", "t", 0, "standalone test duration in seconds (0 = controller mode)")
	flags.String("log-file", "client.log.csv", "CSV log sink path")

	if err := cliapp.BindFlags(cmd, v, "CLIENT"); err != nil {
		panic(err)
	}

	return cmd
}

func runClient(v *viper.Viper) error {
	cfg := wclient.Config{
		ServerIP:       v.GetString("server_ip"),
		ServerPort:     v.GetInt("server_port"),
		ControllerIP:   v.GetString("controller_ip"),
		ControllerPort: v.GetInt("controller_port"),
		Data:           []byte(v.GetString("data")),
		Duration:       time.Duration(v.GetInt("duration")) * time.Second,
		LogPath:        v.GetString("log-file"),
	}

	log := logger.New(os.Stderr, logrus.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		cancel()
	}()

	return wclient.Run(ctx, cfg, log)
}
