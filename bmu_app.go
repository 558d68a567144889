package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"bmu-service/bmu"

	"github.com/brutella/can"
	"github.com/go-redis/redis/v8"
)

const (
	redisHealthCheckInterval = 30 * time.Second
	reportQueueSize          = 16
)

type BMUApp struct {
	log        *LeveledLogger
	redis      *redis.Client
	bus        *can.Bus
	relays     *GPIORelays
	controller *bmu.Controller
	ipcTx      *IPCTx
	diag       *Diag
	reports    chan bmu.Report
	mu         sync.Mutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewBMUApp(opts *Options) (*BMUApp, error) {
	ctx, cancel := context.WithCancel(context.Background())

	stdLogger := opts.Logger
	if stdLogger == nil {
		stdLogger = log.New(os.Stdout, fmt.Sprintf("%s: ", ProjectName), log.LstdFlags)
	}

	app := &BMUApp{
		log:     NewLeveledLogger(stdLogger, opts.LogLevel),
		reports: make(chan bmu.Report, reportQueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}

	// Initialize Redis client with timeouts
	app.redis = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.RedisServerAddr, opts.RedisServerPort),
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	defer connectCancel()

	app.log.Info("Connecting to Redis at %s:%d...", opts.RedisServerAddr, opts.RedisServerPort)

	if err := app.redis.Ping(connectCtx).Err(); err != nil {
		app.Destroy()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	app.log.Info("Successfully connected to Redis")

	app.ipcTx = NewIPCTx(app.log, app.redis, cfg.Transducers)
	app.diag = NewDiag(app.log, app.redis)

	go app.redisHealthCheck()

	relays, err := NewGPIORelays(app.log, opts.GPIOChip, cfg.GPIO)
	if err != nil {
		app.Destroy()
		return nil, err
	}
	app.relays = relays

	bus, err := can.NewBusForInterfaceWithName(opts.CANDevice)
	if err != nil {
		app.Destroy()
		return nil, fmt.Errorf("failed to initialize CAN bus: %w", err)
	}
	app.bus = bus

	app.controller, err = bmu.NewController(cfg.Config, bmu.Deps{
		Publisher: bus,
		Relays:    relays,
		Logger:    app.log,
	})
	if err != nil {
		app.Destroy()
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}
	app.controller.OnReport(app.enqueueReport)

	bus.Subscribe(app.controller.Ingestor())

	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			app.log.Error("CAN bus publish error: %v", err)
		}
	}()
	app.log.Info("CAN bus %s connected", opts.CANDevice)

	app.wg.Add(2)
	go app.writeReports()
	go func() {
		defer app.wg.Done()
		if err := app.controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			app.log.Error("Control loop stopped: %v", err)
		}
	}()

	return app, nil
}

// enqueueReport runs on the control loop and must not block it.
func (app *BMUApp) enqueueReport(r bmu.Report) {
	select {
	case app.reports <- r:
	default:
		app.log.Debug("Report queue full, dropping %s emission", r.Reason)
	}
}

func (app *BMUApp) writeReports() {
	defer app.wg.Done()

	for {
		select {
		case <-app.ctx.Done():
			return
		case r := <-app.reports:
			app.handleReport(r)
		}
	}
}

func (app *BMUApp) handleReport(r bmu.Report) {
	if err := app.ipcTx.SendReport(r); err != nil {
		app.log.Warn("Failed to mirror status: %v", err)
	}
	app.diag.SetFaults(reportFaults(r))
}

func (app *BMUApp) redisHealthCheck() {
	ticker := time.NewTicker(redisHealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(app.ctx, 2*time.Second)
			if err := app.redis.Ping(ctx).Err(); err != nil {
				app.log.Warn("Redis health check failed: %v", err)
			}
			cancel()
		}
	}
}

// Destroy stops the control loop, which discharges before returning, and
// then releases the bus, the GPIO lines and redis.
func (app *BMUApp) Destroy() {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.log.Info("Shutting down bmu application...")

	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()

	if app.bus != nil {
		if err := app.bus.Disconnect(); err != nil {
			app.log.Warn("Error disconnecting CAN bus: %v", err)
		}
		app.log.Info("CAN bus disconnected")
	}

	if app.relays != nil {
		if err := app.relays.Close(); err != nil {
			app.log.Warn("Error releasing GPIO lines: %v", err)
		}
		app.log.Info("GPIO lines released")
	}

	if app.diag != nil {
		app.diag.Destroy()
	}

	if app.ipcTx != nil {
		app.ipcTx.Destroy()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Warn("Error closing Redis connection: %v", err)
		} else {
			app.log.Info("Redis connection closed")
		}
	}

	app.log.Info("BMU application shutdown complete")
}
