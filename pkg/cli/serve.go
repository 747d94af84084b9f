package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/usecase/analyze"
	"github.com/foodlens/foodlens/pkg/utils/logging"
	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("FOODLENS_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, foodDataFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP analysis API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, err := cfg.newAnalyzer(ctx)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			router := gin.New()
			router.Use(gin.Recovery())

			// Analyses run on the server's context so they survive the
			// request that started them.
			registerRoutes(router, uc, ctx)

			srv := &http.Server{
				Addr:    addr,
				Handler: router,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logging.From(ctx).Info("starting HTTP server", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return goerr.Wrap(err, "HTTP server failed")
			}
			return nil
		},
	}
}

type analyzeRequest struct {
	ImageRef string `json:"image_ref" binding:"required"`
}

func registerRoutes(router *gin.Engine, uc *analyze.UseCase, baseCtx context.Context) {
	v1 := router.Group("/v1")

	v1.POST("/analyses", func(c *gin.Context) {
		var req analyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := uc.StartAnalysis(baseCtx, req.ImageRef)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"id": id})
	})

	v1.GET("/analyses", func(c *gin.Context) {
		sessions, err := uc.ListResults(c.Request.Context(), 0, 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	})

	v1.GET("/analyses/:id", func(c *gin.Context) {
		session, err := uc.GetResult(c.Request.Context(), model.SessionID(c.Param("id")))
		if err != nil {
			if errors.Is(err, model.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, session)
	})

	v1.GET("/analyses/:id/events", func(c *gin.Context) {
		events, err := uc.Subscribe(model.SessionID(c.Param("id")))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Stream(func(w io.Writer) bool {
			select {
			case ev, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent(string(ev.Step), ev)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	})
}
