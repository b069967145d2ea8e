package apiapp

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/d-savelev/tasklane/internal/config"
	"github.com/d-savelev/tasklane/internal/dispatcher"
	"github.com/d-savelev/tasklane/internal/domain"
	"github.com/d-savelev/tasklane/internal/infra/notify"
	"github.com/d-savelev/tasklane/internal/infra/pubsub"
	"github.com/d-savelev/tasklane/internal/infra/queue"
	messagestore "github.com/d-savelev/tasklane/internal/infra/store/message"
	schedulestore "github.com/d-savelev/tasklane/internal/infra/store/schedule"
	taskstore "github.com/d-savelev/tasklane/internal/infra/store/task"
	"github.com/d-savelev/tasklane/internal/libs/natsq"
	"github.com/d-savelev/tasklane/internal/libs/rediscli"
	"github.com/d-savelev/tasklane/internal/projection"
	"github.com/d-savelev/tasklane/internal/publisher"
	"github.com/d-savelev/tasklane/internal/transport"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const defaultCfgPath = "./configs/api.yaml"

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
	events   *notify.Events

	taskStore     dispatcher.TaskStore
	messageStore  publisher.MessageStore
	scheduleStore transport.ExecutionStore

	delivery   dispatcher.Delivery
	pubTrans   publisher.Transport
	dispatcher transport.Dispatcher
	publisher  transport.Publisher

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

func (di *dependencyInjector) Events(ctx context.Context) *notify.Events {
	if di.events == nil {
		di.events = notify.NewEvents(di.NATSConn(ctx))
	}
	return di.events
}

func (di *dependencyInjector) TaskStore(ctx context.Context) dispatcher.TaskStore {
	if di.taskStore == nil {
		di.taskStore = taskstore.NewRedisTaskStore(di.RedisClient(ctx), di.Notifier(ctx))
	}
	return di.taskStore
}

func (di *dependencyInjector) MessageStore(ctx context.Context) publisher.MessageStore {
	if di.messageStore == nil {
		di.messageStore = messagestore.NewRedisMessageStore(di.RedisClient(ctx), di.Notifier(ctx))
	}
	return di.messageStore
}

func (di *dependencyInjector) ScheduleStore(ctx context.Context) transport.ExecutionStore {
	if di.scheduleStore == nil {
		di.scheduleStore = schedulestore.NewRedisScheduleStore(di.RedisClient(ctx), di.Notifier(ctx))
	}
	return di.scheduleStore
}

func (di *dependencyInjector) Delivery(ctx context.Context) dispatcher.Delivery {
	if di.delivery == nil {
		cfg := di.Config().Tasks
		di.delivery = queue.New(di.RedisClient(ctx), cfg.QueueName, cfg.PollInterval, cfg.MaxAttempts)
	}
	return di.delivery
}

func (di *dependencyInjector) Dispatcher(ctx context.Context) transport.Dispatcher {
	if di.dispatcher == nil {
		cfg := di.Config().Tasks
		di.dispatcher = dispatcher.New(
			di.TaskStore(ctx),
			di.Delivery(ctx),
			cfg.WorkerURL,
			cfg.MaxScheduleDelay,
		)
	}
	return di.dispatcher
}

func (di *dependencyInjector) Publisher(ctx context.Context) transport.Publisher {
	if di.publisher == nil {
		if di.pubTrans == nil {
			di.pubTrans = pubsub.NewPublisher(di.JetStream(ctx), di.Config().PubSub.SubjectPrefix)
		}
		di.publisher = publisher.New(di.MessageStore(ctx), di.pubTrans)
	}
	return di.publisher
}

func (di *dependencyInjector) Router(ctx context.Context) Router {
	if di.router == nil {
		cfg := di.Config()

		taskStream := func() (<-chan []domain.Task, func()) {
			return projection.Subscribe(ctx, di.Events(ctx),
				taskstore.Collection, cfg.Tasks.StreamLimit, di.TaskStore(ctx).List)
		}
		messageStream := func() (<-chan []domain.Message, func()) {
			return projection.Subscribe(ctx, di.Events(ctx),
				messagestore.Collection, cfg.PubSub.ListLimit, di.MessageStore(ctx).List)
		}

		h := transport.NewHandler(
			di.Dispatcher(ctx),
			di.Publisher(ctx),
			di.ScheduleStore(ctx),
			taskStream,
			messageStream,
			transport.Limits{
				Tasks:      cfg.Tasks.ListLimit,
				Messages:   cfg.PubSub.ListLimit,
				Executions: cfg.Scheduler.ListLimit,
			},
		)
		di.router = transport.NewAPIRouter(h)
	}
	return di.router
}
