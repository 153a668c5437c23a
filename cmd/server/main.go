// Command server is the host shell: it loads a selected back-end by name
// (--library/-l) and drives its initialize/run/close lifecycle against a
// shared core.Object. Flags and environment variables share the
// SCALABLE_SERVER_ prefix.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scalable-server/internal/admin"
	"scalable-server/internal/backend"
	_ "scalable-server/internal/backend/onetoone"
	_ "scalable-server/internal/backend/pollserver"
	"scalable-server/internal/backend/workerpool"
	"scalable-server/internal/cliapp"
	"scalable-server/internal/core"
	"scalable-server/internal/host"
	"scalable-server/internal/logger"
	"scalable-server/internal/logrecord"
	"scalable-server/internal/metrics"
	"scalable-server/internal/xerr"
)

func main() {
	// Self-re-exec sentinel, checked before any flag parsing: a worker-pool
	// child jumps straight into its own loop instead of the host lifecycle.
	if idx, ok := os.LookupEnv(workerpool.EnvChildIndex); ok {
		runChild(idx)
		return
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runChild(idxStr string) {
	log := logger.New(os.Stderr, logrus.InfoLevel)

	index, err := strconv.Atoi(idxStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: invalid %s: %v\n", workerpool.EnvChildIndex, err)
		os.Exit(1)
	}

	tokenStr := os.Getenv(workerpool.EnvSemToken)
	token, err := strconv.ParseInt(tokenStr, 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: invalid %s: %v\n", workerpool.EnvSemToken, err)
		os.Exit(1)
	}

	logPath := os.Getenv(workerpool.EnvLogPath)

	if err := workerpool.RunChild(index, int32(token), logPath, log); err != nil {
		fmt.Fprintf(os.Stderr, "server: worker %d: %v\n", index, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Benchmarking TCP echo-style server with pluggable concurrency back-ends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(v)
		},
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "path to a YAML/JSON/TOML config file overriding these defaults")
	flags.StringP("library", "l", "one-to-one", fmt.Sprintf("back-end to run (%v)", backend.Names()))
	flags.IntP("port", "p", 5000, "TCP port to listen on")
	flags.StringP("ip-addr", "i", "0.0.0.0", "IPv4 address to listen on")
	flags.String("log-file", "server.log.csv", "CSV log sink path")
	flags.String("metrics-addr", "", "address to serve /metrics and /healthz on (disabled if unset)")

	if err := cliapp.BindFlags(cmd, v, "SCALABLE_SERVER"); err != nil {
		panic(err)
	}

	return cmd
}

// loadConfigFile points viper at --config, when given, so flags/env/file
// layer the way cliapp.BindFlags already layers flags over environment.
func loadConfigFile(v *viper.Viper) error {
	path := v.GetString("config")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return xerr.Wrap(xerr.EConfig, fmt.Sprintf("server: read config %q", path), err)
	}
	return nil
}

func runServer(v *viper.Viper) error {
	if err := loadConfigFile(v); err != nil {
		return err
	}

	library := v.GetString("library")
	port := v.GetInt("port")
	ip := v.GetString("ip-addr")
	logPath := v.GetString("log-file")
	metricsAddr := v.GetString("metrics-addr")

	addr := &net.TCPAddr{IP: net.ParseIP(ip), Port: port}

	log := logger.New(os.Stderr, logrus.InfoLevel)

	rec, err := logrecord.Open(logPath)
	if err != nil {
		return xerr.Wrap(xerr.EConfig, fmt.Sprintf("server: open log %q", logPath), err)
	}
	defer rec.Close()

	b, err := backend.New(library)
	if err != nil {
		return err
	}

	o := core.NewObject(addr, log, rec, library, logPath)

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		o.Metrics = metrics.New(reg, library)
		a := admin.New(metricsAddr, reg, log)
		a.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.Shutdown(ctx)
		}()
	}

	if host.Drive(o, b) {
		os.Exit(1)
	}
	return nil
}
