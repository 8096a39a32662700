// Package fixture serves a reference clock page with the same markup
// contract as the production widget, so the verifier can be exercised
// without the real application.
package fixture

import (
	"context"
	"errors"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gotrs-io/blinkcheck/internal/version"
)

// Options selects the page variant.
type Options struct {
	// Frozen keeps the colons visible forever, which the verifier must reject.
	Frozen bool
}

const clockPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <title>Clock fixture</title>
    <style>
        body { font-family: system-ui; padding: 40px; background: #111; }
        .clock { display: inline-block; padding: 8px 16px; border-radius: 8px;
                 background: #000000; color: #ff0000; font-family: monospace; font-size: 24px; text-decoration: none; }
        .colon { display: inline-block; width: 0.5ch; visibility: visible; }
    </style>
</head>
<body>
    <footer>
        <a class="clock" href="https://www.nba.com" target="_blank" rel="noopener noreferrer" aria-label="Visit NBA.com"><span id="hh">00</span><span data-testid="clock-colon" class="colon">:</span><span id="mm">00</span><span data-testid="clock-colon" class="colon">:</span><span id="ss">00</span></a>
    </footer>
    <script>
        const frozen = {{.Frozen}};
        const pad = (n) => String(n).padStart(2, "0");
        function tick() {
            const now = new Date();
            document.getElementById("hh").textContent = pad(now.getHours());
            document.getElementById("mm").textContent = pad(now.getMinutes());
            document.getElementById("ss").textContent = pad(now.getSeconds());
            const shown = frozen || now.getSeconds() % 2 === 0;
            document.querySelectorAll('[data-testid="clock-colon"]').forEach((el) => {
                el.style.visibility = shown ? "visible" : "hidden";
            });
        }
        tick();
        setInterval(tick, 1000);
    </script>
</body>
</html>`

var clockTemplate = template.Must(template.New("clock").Parse(clockPage))

// NewRouter builds the gin engine serving the clock page and a health check.
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID())
	r.SetHTMLTemplate(clockTemplate)

	r.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "clock", gin.H{"Frozen": opts.Frozen})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "frozen": opts.Frozen, "version": version.Get()})
	})
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, opts Options) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[fixture] serving clock page on %s (frozen=%t)", addr, opts.Frozen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Printf("[fixture] stopped")
		return nil
	}
}
