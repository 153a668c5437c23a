// Package wclient implements the worker client (load generator): one
// goroutine per online processor, each looping connect -> send blob -> read
// reply -> log -> repeat, either driven by a fixed standalone duration or
// by START/STOP control messages from a client controller.
package wclient

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"scalable-server/internal/concurrency"
	"scalable-server/internal/logger"
	"scalable-server/internal/logrecord"
	"scalable-server/internal/wire"
	"scalable-server/internal/xerr"
)

// Config is the parsed CLI configuration for the worker client.
type Config struct {
	ServerIP       string
	ServerPort     int
	ControllerIP   string
	ControllerPort int
	Data           []byte
	Duration       time.Duration
	LogPath        string
}

// Standalone reports whether a non-zero duration selects standalone mode.
func (c Config) Standalone() bool { return c.Duration > 0 }

// Run dispatches to standalone or controller mode.
func Run(ctx context.Context, cfg Config, log *logger.Logger) error {
	rec, err := logrecord.Open(cfg.LogPath)
	if err != nil {
		return xerr.Wrap(xerr.EConfig, fmt.Sprintf("wclient: open log %q", cfg.LogPath), err)
	}
	defer rec.Close()

	if cfg.Standalone() {
		return runStandalone(ctx, cfg, rec, log)
	}
	return runControllerMode(ctx, cfg, rec, log)
}

// runStandalone runs workers for a fixed duration: start all workers, then
// wait for the duration to elapse.
func runStandalone(ctx context.Context, cfg Config, rec *logrecord.Writer, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	addr := net.JoinHostPort(cfg.ServerIP, fmt.Sprintf("%d", cfg.ServerPort))
	runWorkers(ctx, addr, cfg.Data, rec, log)
	return nil
}

// runControllerMode connects to the controller, waits for START + payload,
// and runs workers until STOP.
func runControllerMode(ctx context.Context, cfg Config, rec *logrecord.Writer, log *logger.Logger) error {
	ctlAddr := net.JoinHostPort(cfg.ControllerIP, fmt.Sprintf("%d", cfg.ControllerPort))
	conn, err := net.Dial("tcp", ctlAddr)
	if err != nil {
		return xerr.Wrap(xerr.EConnect, fmt.Sprintf("wclient: dial controller %s", ctlAddr), err)
	}
	defer conn.Close()

	for {
		op, err := wire.ReadOpcode(conn)
		if err != nil {
			return xerr.Wrap(xerr.EProtocol, "wclient: read opcode", err)
		}

		switch op {
		case wire.OpStart:
			payload, err := wire.ReadPayload(conn)
			if err != nil {
				return xerr.Wrap(xerr.EProtocol, "wclient: read payload", err)
			}

			runCtx, cancel := context.WithCancel(ctx)
			addr := net.JoinHostPort(payload.ServerIP, fmt.Sprintf("%d", payload.ServerPort))

			done := make(chan struct{})
			go func() {
				runWorkers(runCtx, addr, payload.Data, rec, log)
				close(done)
			}()

			// Block until STOP or the controller connection drops, then
			// cancel the worker pool.
			op2, err := wire.ReadOpcode(conn)
			cancel()
			<-done
			if err != nil {
				return nil
			}
			if op2 != wire.OpStop {
				return wire.ErrUnknownOpcode(op2)
			}
			return nil

		case wire.OpStop:
			return nil

		default:
			return wire.ErrUnknownOpcode(op)
		}
	}
}

// dialBurstCap bounds how many workers may have a dial(2) in flight at
// once, so a burst of simultaneous reconnects after a server restart
// doesn't open thousands of sockets in the same instant.
const dialBurstCap = 64

// runWorkers opens one connection per online processor and runs each until
// ctx is done (runtime.NumCPU is Go's replacement for
// sysconf(_SC_NPROCESSORS_ONLN)).
func runWorkers(ctx context.Context, addr string, data []byte, rec *logrecord.Writer, log *logger.Logger) {
	n := runtime.NumCPU()
	limit := int64(n)
	if limit > dialBurstCap {
		limit = dialBurstCap
	}
	limiter := concurrency.New(limit, true, nil)
	bar := limiter.Bar("workers", int64(n))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker(ctx, id, addr, data, rec, log, limiter)
			if bar != nil {
				bar.Increment()
			}
		}(i)
	}
	wg.Wait()
	limiter.Wait()
}

// worker is one goroutine's loop: connect (retry after 1s on failure),
// send, read reply, log, repeat until cancellation. Dial attempts are
// gated by limiter so a reconnect storm doesn't dial out unbounded.
func worker(ctx context.Context, id int, addr string, data []byte, rec *logrecord.Writer, log *logger.Logger, limiter *concurrency.Limiter) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := limiter.Acquire(ctx); err != nil {
			return
		}
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		limiter.Release()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		runConnection(ctx, conn, data, rec, log)
		conn.Close()
	}
}

// runConnection repeats send/receive cycles on one connection until ctx is
// done or an I/O error other than cancellation occurs.
func runConnection(ctx context.Context, conn net.Conn, data []byte, rec *logrecord.Writer, log *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		hi := time.Now()

		if err := wire.SendBlob(conn, data); err != nil {
			log.Errorf("worker: send: %v", err)
			return
		}

		n, err := wire.ReadUint32(conn)
		end := time.Now()
		if err != nil {
			log.Errorf("worker: read reply: %v", err)
			return
		}

		if rec != nil {
			peer := conn.RemoteAddr().(*net.TCPAddr)
			_ = rec.Append(logrecord.Record{
				Start: start, Identifier: fmt.Sprintf("goroutine:%p", conn),
				PeerIP: peer.IP.String(), PeerPort: peer.Port,
				Bytes: n, End: end,
				Elapsed: end.Sub(start), HighRes: time.Since(hi),
			})
		}
	}
}
