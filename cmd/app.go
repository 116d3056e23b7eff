package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/qrave1/RoomScribe/internal/application/background"
	"github.com/qrave1/RoomScribe/internal/application/config"
	"github.com/qrave1/RoomScribe/internal/application/constant"
	"github.com/qrave1/RoomScribe/internal/application/metric"
	"github.com/qrave1/RoomScribe/internal/domain"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/asr"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/memory"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/postgres"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/RoomScribe/internal/infra/adapters/storage"
	"github.com/qrave1/RoomScribe/internal/infra/ports/http/handlers"
	"github.com/qrave1/RoomScribe/internal/infra/ports/http/server"
	"github.com/qrave1/RoomScribe/internal/usecase"
)

const (
	backgroundLimit   = 64
	backgroundTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: level},
			),
		),
	)

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	// финализация и чекпоинты переживают сигнал остановки
	appCtx := context.WithoutCancel(ctx)

	runner := background.NewRunner(appCtx, backgroundLimit, backgroundTimeout)

	meetingRepo := repository.NewMeetingRepo(dbConn)
	historyRepo := repository.NewHistoryRepo(dbConn)
	roomRegistry := memory.NewRoomRegistry()
	wsConnRepo := memory.NewWSConnectionRepository()
	uploader := storage.NewDiskUploader(cfg.Storage)

	var dialer asr.Dialer
	if cfg.ASR.Enabled {
		dialer = asr.NewDeepgramDialer(cfg.ASR)
	} else {
		slog.Info("live transcription disabled")
	}

	audioUsecase := usecase.NewAudioBufferUsecase(
		roomRegistry,
		meetingRepo,
		runner,
		domain.RecordingLimits{
			MaxBytes:    cfg.Recording.MaxBufferBytes,
			MaxDuration: cfg.Recording.MaxDuration,
		},
		cfg.Recording.CheckpointEvery,
		time.Now,
	)
	transcriptionUsecase := usecase.NewTranscriptionUsecase(ctx, dialer, cfg.ASR.HandshakeTimeout, roomRegistry, wsConnRepo)
	recordingUsecase := usecase.NewRecordingUsecase(
		appCtx,
		audioUsecase,
		transcriptionUsecase,
		roomRegistry,
		wsConnRepo,
		meetingRepo,
		historyRepo,
		uploader,
		runner,
		cfg.Recording,
		cfg.Storage.Subdir,
		time.Now,
	)
	roomUsecase := usecase.NewRoomUsecase(roomRegistry, wsConnRepo, meetingRepo, runner, recordingUsecase)
	signalingUsecase := usecase.NewSignalingUsecase(roomRegistry, wsConnRepo)

	iceHandler := handlers.NewIceHandler(cfg)
	recordingHandler := handlers.NewRecordingHandler(recordingUsecase)
	wsHandler := handlers.NewWebSocketHandler(
		cfg,
		wsConnRepo,
		roomUsecase,
		signalingUsecase,
		audioUsecase,
		transcriptionUsecase,
		recordingUsecase,
	)

	echoSrv := server.New(cfg, iceHandler, wsHandler, recordingHandler)

	metricsSrv := metric.NewServer()

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	// Запускаем HTTP сервер
	go func() {
		slog.Info("starting HTTP server", slog.String("port", cfg.Port))
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	// Запускаем сервер метрик
	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	// Ожидаем сигнал завершения или ошибку сервера
	select {
	case <-ctx.Done():
		slog.Info("Shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	case err := <-metricsSrvCh:
		slog.Error(
			"Metrics server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	}

	// Graceful shutdown
	timeoutCtx, timeoutCancel := context.WithTimeout(appCtx, shutdownTimeout)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}

	recordingUsecase.Wait()
	transcriptionUsecase.CloseAll()
	runner.Wait()

	slog.Info("shutdown complete")
}
