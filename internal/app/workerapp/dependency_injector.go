package workerapp

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/d-savelev/tasklane/internal/config"
	"github.com/d-savelev/tasklane/internal/infra/notify"
	"github.com/d-savelev/tasklane/internal/infra/pubsub"
	"github.com/d-savelev/tasklane/internal/infra/queue"
	messagestore "github.com/d-savelev/tasklane/internal/infra/store/message"
	schedulestore "github.com/d-savelev/tasklane/internal/infra/store/schedule"
	taskstore "github.com/d-savelev/tasklane/internal/infra/store/task"
	"github.com/d-savelev/tasklane/internal/libs/natsq"
	"github.com/d-savelev/tasklane/internal/libs/rediscli"
	"github.com/d-savelev/tasklane/internal/processor"
	"github.com/d-savelev/tasklane/internal/scheduler"
	"github.com/d-savelev/tasklane/internal/transport"
	"github.com/d-savelev/tasklane/internal/worker"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const defaultCfgPath = "./configs/worker.yaml"

type Router interface {
	MountRoutes(*http.ServeMux) *http.ServeMux
}

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis    *redis.Client
	natsConn *nats.Conn
	js       nats.JetStreamContext

	notifier *notify.Notifier

	taskStore    worker.TaskStore
	messageStore processor.MessageStore

	queue     *queue.Queue
	executor  transport.Executor
	processor *processor.Processor
	consumer  *pubsub.Consumer
	heartbeat *scheduler.Heartbeat

	router Router
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		path := os.Getenv("TASKLANE_CONFIG")
		if path == "" {
			path = defaultCfgPath
		}
		di.cfg = config.MustLoad(path)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(ctx, rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			log.Fatalf("redis client: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().NATS
		nc, err := natsq.NewConnect(cfg.URL, natsq.Config{
			Name:          cfg.Name,
			MaxReconnects: cfg.MaxReconnects,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
		di.Logger().Info("connected to NATS", slog.String("url", cfg.URL))
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream(ctx context.Context) nats.JetStreamContext {
	if di.js == nil {
		cfg := di.Config().PubSub
		js, err := natsq.NewJetStream(di.NATSConn(ctx), cfg.Stream, cfg.SubjectPrefix)
		if err != nil {
			log.Fatalf("JetStream: %+v", err)
		}
		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Notifier(ctx context.Context) *notify.Notifier {
	if di.notifier == nil {
		di.notifier = notify.NewNotifier(di.NATSConn(ctx))
	}
	return di.notifier
}

func (di *dependencyInjector) TaskStore(ctx context.Context) worker.TaskStore {
	if di.taskStore == nil {
		di.taskStore = taskstore.NewRedisTaskStore(di.RedisClient(ctx), di.Notifier(ctx))
	}
	return di.taskStore
}

func (di *dependencyInjector) MessageStore(ctx context.Context) processor.MessageStore {
	if di.messageStore == nil {
		di.messageStore = messagestore.NewRedisMessageStore(di.RedisClient(ctx), di.Notifier(ctx))
	}
	return di.messageStore
}

func (di *dependencyInjector) Queue(ctx context.Context) *queue.Queue {
	if di.queue == nil {
		cfg := di.Config().Tasks
		di.queue = queue.New(di.RedisClient(ctx), cfg.QueueName, cfg.PollInterval, cfg.MaxAttempts)
	}
	return di.queue
}

func (di *dependencyInjector) Executor(ctx context.Context) transport.Executor {
	if di.executor == nil {
		di.executor = worker.New(di.TaskStore(ctx))
	}
	return di.executor
}

func (di *dependencyInjector) Consumer(ctx context.Context) *pubsub.Consumer {
	if di.consumer == nil {
		cfg := di.Config().PubSub
		if di.processor == nil {
			di.processor = processor.New(di.MessageStore(ctx), cfg.ProcessingDelay)
		}
		di.consumer = pubsub.NewConsumer(
			di.JetStream(ctx),
			cfg.Stream,
			cfg.SubjectPrefix,
			cfg.Durable,
			cfg.PoolSize,
			di.processor.Handle,
		)
	}
	return di.consumer
}

func (di *dependencyInjector) Heartbeat(ctx context.Context) *scheduler.Heartbeat {
	if di.heartbeat == nil {
		store := schedulestore.NewRedisScheduleStore(di.RedisClient(ctx), di.Notifier(ctx))
		di.heartbeat = scheduler.New(store, di.Config().Scheduler.Spec)
	}
	return di.heartbeat
}

func (di *dependencyInjector) Router(ctx context.Context) Router {
	if di.router == nil {
		di.router = transport.NewWorkerRouter(
			transport.NewWorkerHandler(di.Executor(ctx)),
		)
	}
	return di.router
}
