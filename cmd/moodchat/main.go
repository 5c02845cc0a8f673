package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-tavern/moodchat/internal/config"
	"github.com/zhouzirui/z-tavern/moodchat/internal/handler"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/channel"
	chatservice "github.com/zhouzirui/z-tavern/moodchat/internal/service/chat"
	moodservice "github.com/zhouzirui/z-tavern/moodchat/internal/service/mood"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/session"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/video"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/vision"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		glog.Warningf("failed to load .env file: %v", err)
		glog.Info("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		glog.Exitf("failed to load configuration: %v", err)
	}

	store := chatservice.NewStore()
	camera := video.NewSource(newCameraDevice(cfg.Camera), video.NewSink())
	moodState := moodservice.NewState()

	// The engine must be loaded before any tick is scheduled; without it the
	// mood stays unset for the whole session and chat keeps working.
	var detector session.Detector
	engine, err := loadEngine(ctx, cfg)
	if err != nil {
		glog.Warningf("mood detection disabled: %v", err)
	} else if engine != nil {
		detector = moodservice.NewDetector(camera.Sink(), engine, moodState, cfg.Mood.Interval)
	} else {
		glog.Info("mood detection disabled by configuration")
	}

	client := channel.New(channel.Config{
		URL:           cfg.Channel.URL,
		Reconnect:     cfg.Channel.Reconnect,
		MaxRetries:    cfg.Channel.MaxRetries,
		RetryDelay:    cfg.Channel.RetryDelay,
		MaxRetryDelay: cfg.Channel.MaxRetryDelay,
	}, store)
	client.OnStateChange(func(s channel.State) {
		glog.Infof("channel %s", s)
	})

	sess := session.New(session.Deps{
		History:  store,
		Mood:     moodState,
		Channel:  client,
		Detector: detector,
		Camera:   camera,
	})
	if err := sess.Start(ctx); err != nil {
		glog.Exitf("failed to start session: %v", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			glog.Errorf("session close: %v", err)
		}
	}()

	router := handler.NewRouter(sess, camera.Sink())
	startServer(ctx, cfg.Server, router)
}

func newCameraDevice(cfg config.CameraConfig) video.Device {
	if cfg.URL == "" {
		return nil
	}
	device, err := video.NewSnapshotDevice(video.SnapshotConfig{
		URL:      cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password,
		FPS:      cfg.FPS,
	})
	if err != nil {
		glog.Warningf("invalid camera configuration: %v", err)
		return nil
	}
	return device
}

// loadEngine returns a nil engine when mood detection is switched off.
func loadEngine(ctx context.Context, cfg *config.Config) (vision.Engine, error) {
	switch cfg.Mood.Engine {
	case config.EngineNone:
		return nil, nil
	case config.EngineArk:
		chatModel, err := cfg.Vision.NewChatModel(ctx)
		if err != nil {
			return nil, err
		}
		return vision.NewArkEngine(chatModel)
	default:
		loadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return vision.LoadRemote(loadCtx, vision.RemoteConfig{ModelsURL: cfg.Mood.ModelsURL})
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	glog.Infof("mood chat UI listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		glog.Errorf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
