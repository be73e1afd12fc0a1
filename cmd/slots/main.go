package main

import (
	"context"

	bookingshandler "licensedesk/internal/bookings/handler"
	bookingsrepo "licensedesk/internal/bookings/repository"
	bookingsservice "licensedesk/internal/bookings/service"
	bookingsvalidator "licensedesk/internal/bookings/validator"
	"licensedesk/internal/checkout"
	"licensedesk/internal/events"
	"licensedesk/internal/feed"
	"licensedesk/internal/metrics"
	"licensedesk/internal/pending"
	"licensedesk/internal/session"
	"licensedesk/internal/slots/availability"
	slotshandler "licensedesk/internal/slots/handler"
	slotsrepo "licensedesk/internal/slots/repository"
	slotsservice "licensedesk/internal/slots/service"
	"licensedesk/internal/slots/sweeper"
	slotsvalidator "licensedesk/internal/slots/validator"
	"licensedesk/internal/uploads"
	"licensedesk/pkg/app"
	"licensedesk/pkg/config"
	"licensedesk/pkg/kafka"
	kafka_config "licensedesk/pkg/kafka/config"
	kafka_middleware "licensedesk/pkg/kafka/middleware"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const ServiceName = "slots"

type stores struct {
	slots    slotsrepo.SlotRepository
	bookings bookingsrepo.BookingRepository
	exams    bookingsrepo.ExamBookingRepository
}

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting Slots service", "store_driver", cfg.StoreDriver)

	if cfg.UsesMongo() {
		cfg.SetMongo()
	}
	cfg.SetRedis()
	cfg.SetS3()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	slotMetrics := metrics.NewSlotMetrics(registry)

	verifier := session.NewVerifier(cfg.JWTSecret)
	serverApp := app.NewApplication(cfg, verifier, registry)

	st := initStores(cfg)
	hub := feed.NewHub(slotMetrics, cfg.Log)
	publisher := initPublisher(cfg, serverApp, hub, registry)
	evaluator := availability.NewEvaluator(cfg.SlotLocation, availability.Thresholds{
		Soon:   cfg.SoonThreshold,
		Urgent: cfg.UrgentThreshold,
	})

	builder, err := checkout.NewBuilder(cfg.CheckoutBaseURL, cfg.VoucherCheckoutStorageKey)
	if err != nil {
		cfg.Log.Fatal("Invalid checkout configuration", "error", err)
	}

	var pendingQueue pending.Queue
	if cfg.Client.Redis != nil {
		pendingQueue = pending.NewRedisQueue(cfg.Client.Redis, cfg.PendingActionTTL)
	} else {
		cfg.Log.Warn("Pending actions kept in memory; they do not survive restarts")
		pendingQueue = pending.NewMemoryQueue(cfg.PendingActionTTL)
	}

	slotValidator := slotsvalidator.NewSlotValidator(cfg.Log)
	bookingValidator := bookingsvalidator.NewBookingValidator(cfg.Log)

	catalog := slotsservice.NewCatalogService(st.slots, evaluator, slotValidator, slotMetrics, cfg)
	arbitrator := slotsservice.NewArbitrator(slotsservice.ArbitratorDeps{
		Slots:     st.slots,
		Bookings:  st.bookings,
		Validator: bookingValidator,
		Evaluator: evaluator,
		Checkout:  builder,
		Pending:   pendingQueue,
		Publisher: publisher,
		Metrics:   slotMetrics,
	}, cfg)
	inventory := slotsservice.NewInventoryService(st.slots, slotValidator, evaluator, publisher, cfg)
	bookingService := bookingsservice.NewBookingService(st.bookings, st.exams, bookingValidator, publisher, cfg)

	uploadStore := uploads.NewStore(s3API(cfg), cfg.S3Bucket, cfg.S3Region, cfg.S3PublicBaseURL, cfg.Log)

	slotSweeper := sweeper.New(st.slots, publisher, slotMetrics, cfg.Log, cfg.SweepInterval)
	serverApp.AddWorker("sweeper", slotSweeper.Start)

	serverApp.SetApp(
		slotshandler.NewSlotHandler(catalog, arbitrator, inventory, cfg.Log),
		bookingshandler.NewBookingHandler(bookingService, cfg.Log),
		feed.NewHandler(hub, catalog, st.slots, verifier, evaluator, cfg.CountdownInterval, slotMetrics, cfg.Log),
		uploads.NewHandler(uploadStore, cfg.MaxUploadSize, cfg.Log),
	)
	serverApp.Run()
}

func initStores(cfg *config.Config) stores {
	if cfg.UsesMongo() {
		cfg.Log.Info("Using MongoDB stores", "database", cfg.MongoDatabaseName)
		return stores{
			slots:    slotsrepo.NewMongoSlotRepository(cfg),
			bookings: bookingsrepo.NewMongoBookingRepository(cfg),
			exams:    bookingsrepo.NewMongoExamBookingRepository(cfg),
		}
	}

	cfg.Log.Warn("Using in-memory stores; data is lost on restart")
	return stores{
		slots:    slotsrepo.NewMemorySlotRepository(nil),
		bookings: bookingsrepo.NewMemoryBookingRepository(),
		exams:    bookingsrepo.NewMemoryExamBookingRepository(),
	}
}

// initPublisher always notifies this instance's hub. With Kafka enabled every
// change is also published, and a consumer in a per-instance group feeds
// changes from other instances into the hub.
func initPublisher(cfg *config.Config, serverApp *app.Application, hub *feed.Hub, reg prometheus.Registerer) events.Publisher {
	local := events.NewLocalPublisher(hub)
	if !cfg.KafkaEnabled {
		return local
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaMetrics := kafka_middleware.NewMetrics(reg)

	producer, err := kafka.NewProducer(kafkaCfg, kafkaCfg.SlotChangesTopic, kafkaCfg.SlotChangesDLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	groupID := kafkaCfg.ConsumerGroup + "-" + uuid.NewString()
	consumer, err := kafka.NewConsumer(kafkaCfg, kafkaCfg.SlotChangesTopic, groupID, kafkaCfg.SlotChangesDLQTopic, hub.HandleMessage, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}

	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(kafkaMetrics.ProducerMiddleware())
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(kafkaMetrics.ConsumerMiddleware())
	}

	serverApp.AddWorker("kafka-consumer", func(ctx context.Context) {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			cfg.Log.Error("Kafka consumer stopped", "error", err)
		}
	})
	serverApp.OnShutdown(consumer.Close)
	serverApp.OnShutdown(producer.Close)

	cfg.Log.Info("Kafka change feed enabled", "topic", kafkaCfg.SlotChangesTopic, "group", groupID)
	return events.NewFanOut(cfg.Log, events.NewKafkaPublisher(producer), local)
}

// s3API avoids handing the store a typed nil when S3 is not configured.
func s3API(cfg *config.Config) uploads.S3API {
	if cfg.Client.S3 == nil {
		return nil
	}
	return cfg.Client.S3
}
