// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-freshmart/config"
	"go-freshmart/controllers"
	"go-freshmart/middleware"
	"go-freshmart/repository"
	"go-freshmart/routes"
	"go-freshmart/services"
	"go-freshmart/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	// Set the JWT secret key
	utils.JwtKey = []byte(cfg.JWTSecret)

	// Connect to MongoDB
	client, err := utils.ConnectDB(ctx, cfg.Mongo.URI)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Warn("disconnect mongo", zap.Error(err))
		}
	}()
	db := client.Database(cfg.Mongo.Database)
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	products := repository.NewProductRepository(db)
	users := repository.NewUserRepository(db)
	unit := repository.NewMongoUnitOfWork(client, cfg.Mongo.Transactions)

	notifier, closeNotifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	inventory, err := services.NewInventoryLedger(products, logger.Named("inventory"))
	if err != nil {
		return err
	}
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       repository.NewOrderRepository(db),
		Products:     products,
		Inventory:    inventory,
		Counters:     repository.NewCounterRepository(db),
		UnitOfWork:   unit,
		Notifier:     notifier,
		Logger:       logger.Named("orders"),
		NumberPrefix: cfg.Orders.NumberPrefix,
	})
	if err != nil {
		return err
	}
	payments, err := services.NewPaymentService(orders, notifier, logger.Named("payments"))
	if err != nil {
		return err
	}
	subscriptions, err := services.NewSubscriptionService(services.SubscriptionServiceDeps{
		Subscriptions: repository.NewSubscriptionRepository(db),
		Products:      products,
		Notifier:      notifier,
		Location:      cfg.BusinessLocation,
		Logger:        logger.Named("subscriptions"),
	})
	if err != nil {
		return err
	}
	stores, err := services.NewStoreDirectory(repository.NewStoreRepository(db), unit, nil, logger.Named("stores"))
	if err != nil {
		return err
	}

	var locker services.Locker
	if cfg.Redis.Addr != "" {
		redisLocker := utils.NewRedisLocker(cfg.Redis.Addr)
		defer redisLocker.Close()
		if err := redisLocker.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		locker = redisLocker
	}
	sweeper, err := services.NewSubscriptionSweeper(subscriptions, locker, cfg.Sweep.Interval, cfg.Sweep.LockTTL, logger)
	if err != nil {
		return err
	}

	// Set up the router
	router := mux.NewRouter()
	routes.RegisterRoutes(router, routes.Controllers{
		Orders:        controllers.NewOrderController(orders, payments, logger),
		Subscriptions: controllers.NewSubscriptionController(subscriptions, cfg.BusinessLocation, logger),
		Stores:        controllers.NewStoreController(stores, logger),
	}, middleware.AuthMiddleware(users, logger), middleware.AdminMiddleware)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.Handler(router, logger.Named("http"), cfg.RequestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildNotifier combines the email and broker sinks that are configured.
func buildNotifier(cfg config.Config, logger *zap.Logger) (services.Notifier, func(), error) {
	emails, err := utils.NewEmailService(cfg.Email, logger.Named("email"))
	if err != nil {
		return nil, nil, err
	}
	var publisher *utils.EventPublisher
	if cfg.AMQP.URL != "" {
		publisher, err = utils.NewEventPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, nil, err
		}
	}
	closer := func() {
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Warn("close event publisher", zap.Error(err))
			}
		}
	}
	return utils.NewMultiNotifier(emails, publisher), closer, nil
}
