package app

import (
	"context"
	"fmt"

	commonmetrics "tutordesk/common/metrics"
	"tutordesk/internal/db"
	"tutordesk/internal/health"
	"tutordesk/internal/kafka"
	"tutordesk/internal/messaging"
	"tutordesk/internal/scheduler"
	"tutordesk/internal/student"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"
)

// openStore connects the configured student store and returns its readiness checks.
func (a *App) openStore(ctx context.Context, m *commonmetrics.Metrics) (student.Repository, []health.Check, error) {
	switch a.config.Database.Driver {
	case "postgres":
		database, err := db.New(ctx, a.config.Database, a.logger)
		if err != nil {
			return nil, nil, err
		}
		a.addCloser("postgres", func(context.Context) error { return database.Close() })

		if err := db.Migrate(ctx, database, a.logger); err != nil {
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if err := m.Database.RegisterDB(database.DB, otel.Meter(ServiceName)); err != nil {
			a.logger.Warn("failed to register pool metrics", "error", err)
		}

		check := health.Check{Name: "postgres", Probe: database.PingContext}
		return student.NewRepository(database, m), []health.Check{check}, nil

	case "mongo":
		client, mdb, err := db.NewMongo(ctx, a.config.Mongo, a.logger)
		if err != nil {
			return nil, nil, err
		}
		a.addCloser("mongo", client.Disconnect)

		if err := student.EnsureIndexes(ctx, mdb, a.config.Mongo.Collection); err != nil {
			return nil, nil, fmt.Errorf("failed to create mongo indexes: %w", err)
		}

		check := health.Check{Name: "mongo", Probe: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		}}
		return student.NewMongoRepository(mdb, a.config.Mongo.Collection, m), []health.Check{check}, nil

	case "memory":
		a.logger.Warn("using in-memory student store, data is lost on restart")
		return student.NewMemoryRepository(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", a.config.Database.Driver)
	}
}

// openLocker uses Redis when configured so replicas never run the same job twice.
func (a *App) openLocker(ctx context.Context) (scheduler.Locker, []health.Check, error) {
	cfg := a.config.Redis
	if cfg.Addr == "" {
		return scheduler.NewLocalLocker(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	a.addCloser("redis", func(context.Context) error { return client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.logger.Info("redis connected, using distributed job lock", "addr", cfg.Addr)

	check := health.Check{Name: "redis", Probe: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
	return scheduler.NewRedisLocker(client, ServiceName+":"), []health.Check{check}, nil
}

// openPublisher returns nil when events are disabled; the student handler then publishes nowhere.
func (a *App) openPublisher(m *commonmetrics.Metrics) (student.EventPublisher, error) {
	switch a.config.Events.Driver {
	case "", "none":
		return nil, nil

	case "nats":
		producer, err := messaging.NewProducer(a.config.NATS.URL, a.config.NATS.Subject, a.logger, m)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS producer: %w", err)
		}
		a.addCloser("nats", func(context.Context) error { return producer.Close() })
		return producer, nil

	case "kafka":
		producer, err := kafka.NewProducer(a.config.Kafka.Brokers, a.config.Kafka.Topic, a.logger, m)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		a.addCloser("kafka", func(context.Context) error { return producer.Close() })
		return producer, nil

	default:
		return nil, fmt.Errorf("unsupported events driver %q", a.config.Events.Driver)
	}
}
