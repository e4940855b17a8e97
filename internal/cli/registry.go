package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depstack/pkg/registry"
)

const shutdownTimeout = 5 * time.Second

// serveOpts holds the flags of the serve command.
type serveOpts struct {
	addr string // listen address
	dir  string // registry root directory
}

// newRegistryCmd groups the registry hosting commands.
func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Host and inspect package registries",
	}
	cmd.AddCommand(newServeCmd())
	return cmd
}

// newServeCmd creates the serve command, which hosts a directory of
// packages over the registry protocol so clients can resolve against it.
func newServeCmd() *cobra.Command {
	opts := serveOpts{addr: ":8080", dir: "."}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a local directory as a package registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			srv := &http.Server{
				Addr:    opts.addr,
				Handler: registry.NewServer(opts.dir, logger).Handler(),
			}

			errc := make(chan error, 1)
			go func() {
				logger.Info("registry listening", "addr", opts.addr, "dir", opts.dir)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", opts.addr, "listen address")
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", opts.dir, "registry root directory")
	return cmd
}
