package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jspindler/takt/internal/notify"
)

func newServeCmd(app *App) *cobra.Command {
	var addr, natsURL, natsPrefix string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and live schedule events",
		Long: `Serve exposes Prometheus metrics on /metrics and a one-way websocket
event feed on /ws for shop-floor displays. With --nats, every event is
also mirrored onto NATS subjects for other plant systems.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Bus == nil || app.Hub == nil {
				return fmt.Errorf("event bus is not configured")
			}

			if natsURL != "" {
				publisher, err := notify.NewNATSPublisher(natsURL, natsPrefix, nil)
				if err != nil {
					return err
				}
				defer publisher.Close()
				publisher.Attach(app.Bus)
			}

			app.Hub.Attach(app.Bus)
			go app.Hub.Run()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/ws", app.Hub.ServeWs)
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			cmd.Printf("Serving on %s (metrics on /metrics, events on /ws)\n", addr)
			return server.ListenAndServe()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9090", "Listen address")
	cmd.Flags().StringVar(&natsURL, "nats", "", "NATS server URL to mirror events onto")
	cmd.Flags().StringVar(&natsPrefix, "nats-prefix", "takt", "Subject prefix for mirrored events")

	return cmd
}
