package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/anggasct/ndstream/internal/logger"
	"github.com/anggasct/ndstream/internal/mockserver"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		addr      string
		records   int
		chunkSize int
		delay     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run a mock server that streams NDJSON in small chunks",
		Long: "Routes: GET /ndjson, POST /echo, GET /abort, GET /status/{code}, GET /healthz. " +
			"Query parameters records, chunk, delay, trailing, blank and bad override the defaults per request.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := &a.cfg.Server
			fs := cmd.Flags()
			if fs.Changed("addr") {
				sc.Addr = addr
			}
			if fs.Changed("records") {
				sc.Records = records
			}
			if fs.Changed("chunk-size") {
				sc.ChunkSize = chunkSize
			}
			if fs.Changed("delay") {
				sc.Delay = delay
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			srv := mockserver.New(mockserver.Config{
				Addr:        sc.Addr,
				Records:     sc.Records,
				ChunkSize:   sc.ChunkSize,
				Delay:       sc.Delay,
				CORSOrigins: sc.CORSOrigins,
				Logger:      logger.Named("mockserver"),
			})
			return srv.ListenAndServe(cmd.Context())
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&addr, "addr", "", "listen address (default from config)")
	fs.IntVar(&records, "records", 0, "records per stream")
	fs.IntVar(&chunkSize, "chunk-size", 0, "bytes per write")
	fs.DurationVar(&delay, "delay", 0, "pause between writes")
	return cmd
}
