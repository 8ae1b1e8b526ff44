package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"misl/internal/cacheproxy"
	"misl/internal/config"
	"misl/internal/web"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// listener is one HTTP server sharing the process lifetime.
type listener struct {
	name    string
	ln      net.Listener
	handler http.Handler
}

// runServers serves every listener until ctx ends or one of them fails,
// then shuts all of them down.
func runServers(ctx context.Context, log *slog.Logger, ls ...listener) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range ls {
		srv := &http.Server{
			Handler:           l.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info("listening", "server", l.name, "addr", l.ln.Addr().String())
			if err := srv.Serve(l.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s: %w", l.name, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	return g.Wait()
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
}

func defaultCachePath() string {
	dir, err := config.Dir()
	if err != nil {
		return "misl-cache.db"
	}
	return filepath.Join(dir, "cache.db")
}

func openProxy(ctx context.Context, upstream, cachePath string, timeout time.Duration, log *slog.Logger) (*cacheproxy.Proxy, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return nil, nil, err
	}
	cache, err := cacheproxy.OpenSQLiteCache(ctx, cachePath)
	if err != nil {
		return nil, nil, err
	}
	p, err := cacheproxy.New(cacheproxy.Config{
		Upstream: upstream,
		Timeout:  timeout,
		Logger:   log.With("component", "proxy"),
	}, cache)
	if err != nil {
		_ = cache.Close()
		return nil, nil, err
	}
	return p, cache.Close, nil
}

func newServeCmd(app *App) *cobra.Command {
	var addr string
	var dataDir string
	var proxyAddr string
	var cachePath string
	var proxyTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the list API server (optionally with a caching proxy in front)",
		Example: strings.TrimSpace(`
# Serve lists stored in ./data
misl serve --addr :8080 --data-dir ./data

# Also run the stale-while-revalidate proxy clients should talk to
misl serve --addr 127.0.0.1:8080 --proxy-addr :8081
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := app.logger()
			srv, err := web.NewServer(web.ServerConfig{
				Addr:    addr,
				DataDir: dataDir,
				Logger:  log.With("component", "api"),
			})
			if err != nil {
				return writeErr(cmd, err)
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			apiLn, err := net.Listen("tcp", strings.TrimSpace(addr))
			if err != nil {
				return writeErr(cmd, err)
			}
			servers := []listener{{name: "api", ln: apiLn, handler: srv.Handler()}}
			data := map[string]any{
				"addr":    apiLn.Addr().String(),
				"dataDir": dataDir,
			}

			if strings.TrimSpace(proxyAddr) != "" {
				upstream := "http://" + apiLn.Addr().String()
				p, closeCache, err := openProxy(ctx, upstream, cachePath, proxyTimeout, log)
				if err != nil {
					_ = apiLn.Close()
					return writeErr(cmd, err)
				}
				defer func() { _ = closeCache() }()
				proxyLn, err := net.Listen("tcp", strings.TrimSpace(proxyAddr))
				if err != nil {
					_ = apiLn.Close()
					return writeErr(cmd, err)
				}
				servers = append(servers, listener{name: "proxy", ln: proxyLn, handler: p})
				data["proxyAddr"] = proxyLn.Addr().String()
				data["cachePath"] = cachePath
			}

			_ = writeOut(cmd, app, map[string]any{"data": data})
			if err := runServers(ctx, log, servers...); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "API bind address (host:port or :port)")
	cmd.Flags().StringVar(&dataDir, "data-dir", envOr("MISL_DATA_DIR", "data"), "Directory holding list files")
	cmd.Flags().StringVar(&proxyAddr, "proxy-addr", "", "Also run the caching proxy on this address")
	cmd.Flags().StringVar(&cachePath, "cache", defaultCachePath(), "Proxy cache database path")
	cmd.Flags().DurationVar(&proxyTimeout, "proxy-timeout", cacheproxy.DefaultTimeout, "How long a cached GET waits for the live answer")
	return cmd
}

func newProxyCmd(app *App) *cobra.Command {
	var addr string
	var upstream string
	var cachePath string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the stale-while-revalidate caching proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(upstream) == "" {
				return writeErr(cmd, errMissingFlag("upstream"))
			}
			log := app.logger()
			ctx, stop := signalContext(cmd)
			defer stop()

			p, closeCache, err := openProxy(ctx, upstream, cachePath, timeout, log)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer func() { _ = closeCache() }()

			ln, err := net.Listen("tcp", strings.TrimSpace(addr))
			if err != nil {
				return writeErr(cmd, err)
			}
			_ = writeOut(cmd, app, map[string]any{"data": map[string]any{
				"addr":      ln.Addr().String(),
				"upstream":  upstream,
				"cachePath": cachePath,
			}})
			if err := runServers(ctx, log, listener{name: "proxy", ln: ln, handler: p}); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8081", "Bind address (host:port or :port)")
	cmd.Flags().StringVar(&upstream, "upstream", "http://127.0.0.1:8080", "List API base URL")
	cmd.Flags().StringVar(&cachePath, "cache", defaultCachePath(), "Cache database path")
	cmd.Flags().DurationVar(&timeout, "timeout", cacheproxy.DefaultTimeout, "How long a cached GET waits for the live answer")
	return cmd
}
