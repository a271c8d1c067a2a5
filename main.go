package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agent_erpsync/app/api"
	"agent_erpsync/app/integrations"
	"agent_erpsync/app/jobs"
	"agent_erpsync/app/retry"
	"agent_erpsync/app/scheduler"
	"agent_erpsync/app/services"
	"agent_erpsync/app/storage/mongostore"
	"agent_erpsync/app/storage/redisstore"
	"agent_erpsync/config"
	"agent_erpsync/utility/logger"

	"github.com/prometheus/client_golang/prometheus"
	r "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// AppLogger là logger chính của ứng dụng
var AppLogger *logrus.Logger

// stores gom các lớp lưu trữ; mỗi lớp dùng memory khi chưa cấu hình backend
type stores struct {
	history scheduler.ExecutionStore
	queue   retry.Queue
	dead    retry.DeadLetterStore
	orders  jobs.OrderStore
	closers []func(context.Context) error
}

func openStores(ctx context.Context, cfg *config.Configuration) (*stores, error) {
	st := &stores{
		history: scheduler.NewMemoryExecutionStore(0),
		queue:   retry.NewMemoryQueue(),
		dead:    retry.NewMemoryDeadLetterStore(),
		orders:  jobs.NewMemoryOrderStore(),
	}

	if cfg.MongoUri != "" {
		client, db, err := mongostore.Connect(ctx, cfg.MongoUri, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			AppLogger.WithError(err).Warn("⚠️ Không tạo được index MongoDB")
		}
		st.history = mongostore.NewExecutionStore(db)
		st.dead = mongostore.NewDeadLetterStore(db)
		st.orders = mongostore.NewOrderStore(db)
		st.closers = append(st.closers, client.Disconnect)
	} else {
		AppLogger.Warn("⚠️ MONGO_URI chưa được cấu hình, history/dead-letter/order dùng memory")
	}

	if cfg.RedisAddr != "" {
		rdb := r.NewClient(&r.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping Redis: %w", err)
		}
		st.queue = redisstore.NewRetryQueue(rdb, "")
		st.closers = append(st.closers, func(context.Context) error { return rdb.Close() })
		AppLogger.WithField("addr", cfg.RedisAddr).Info("✅ Đã kết nối Redis")
	} else {
		AppLogger.Warn("⚠️ REDIS_ADDR chưa được cấu hình, hàng đợi retry dùng memory")
	}
	return st, nil
}

func (st *stores) close(ctx context.Context) {
	for _, c := range st.closers {
		if err := c(ctx); err != nil {
			AppLogger.WithError(err).Warn("Lỗi khi đóng kết nối")
		}
	}
}

// jobSet giữ instance cụ thể của các job để admin API gọi các entry point vận hành
type jobSet struct {
	stock     *jobs.StockSyncJob
	price     *jobs.PriceSyncJob
	full      *jobs.FullSyncJob
	orderPush *jobs.OrderPushJob
	retry     *jobs.RetryJob
}

func (js *jobSet) runners() map[string]scheduler.Job {
	return map[string]scheduler.Job{
		scheduler.JobStockSync: js.stock,
		scheduler.JobPriceSync: js.price,
		scheduler.JobFullSync:  js.full,
		scheduler.JobOrderPush: js.orderPush,
		scheduler.JobRetry:     js.retry,
	}
}

func (js *jobSet) operations() api.Operations {
	return api.Operations{
		FullSync: js.full,
		Stock:    js.stock,
		Price:    js.price,
		Orders:   js.orderPush,
		Retry:    js.retry,
	}
}

// buildJobs tạo instance cho mọi job mặc định
func buildJobs(cfg *config.Configuration, erp *integrations.ERPClient, st *stores, retrySvc *retry.Service) *jobSet {
	stock := erp.Domain(jobs.DomainStock)
	price := erp.Domain(jobs.DomainPrice)

	orderPush := jobs.NewOrderPushJob(scheduler.JobOrderPush, jobs.OrderPushServices{
		Orders:    st.orders,
		Pusher:    erp,
		Customers: erp,
		Retry:     retrySvc,
		Tracker:   retrySvc,
	}, jobs.OrderPushOptions{
		BatchSize: cfg.OrderPushBatchSize,
		Delay:     cfg.OrderPushDelay(),
	})
	retrySvc.Register(jobs.RetryEntityOrder, orderPush.RetryOrder)
	retrySvc.Register(jobs.RetryEntityCustomer, orderPush.RetryCustomer)

	return &jobSet{
		stock: jobs.NewStockSyncJob(scheduler.JobStockSync, stock),
		price: jobs.NewPriceSyncJob(scheduler.JobPriceSync, price),
		full: jobs.NewFullSyncJob(scheduler.JobFullSync, jobs.FullSyncServices{
			Stock:    stock,
			Price:    price,
			Customer: erp.Domain(jobs.DomainCustomer),
			Order:    erp.Domain(jobs.DomainOrder),
		}),
		orderPush: orderPush,
		retry:     jobs.NewRetryJob(scheduler.JobRetry, retrySvc, cfg.RetryBatchSize),
	}
}

func main() {
	// Đọc cấu hình từ env hoặc file .env trước
	cfg, cfgErr := config.NewConfig()

	// Khởi tạo logger với cấu hình từ environment variables
	if err := logger.InitLogger(config.LogConfig()); err != nil {
		panic(fmt.Sprintf("Không thể khởi tạo logger: %v", err))
	}
	AppLogger = logger.GetAppLogger()
	if cfgErr != nil {
		AppLogger.WithError(cfgErr).Fatal("❌ Cấu hình không hợp lệ")
	}
	AppLogger.Info("Hệ thống logger đã được khởi tạo thành công")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		AppLogger.WithError(err).Fatal("❌ Không khởi tạo được lớp lưu trữ")
	}
	defer st.close(context.Background())

	loc, err := cfg.Location()
	if err != nil {
		AppLogger.WithError(err).Fatal("❌ Timezone không hợp lệ")
	}
	defs, err := cfg.JobDefinitions()
	if err != nil {
		AppLogger.WithError(err).Fatal("❌ Cấu hình job không hợp lệ")
	}
	if len(defs) == 0 {
		AppLogger.Fatal("❌ Không có job nào được cấu hình")
	}

	metrics := services.NewMetricsCollector(prometheus.DefaultRegisterer)
	s := scheduler.NewScheduler(scheduler.Options{
		Location:    loc,
		History:     st.history,
		Observer:    metrics,
		LaneWorkers: cfg.LaneWorkers(),
	})

	erp := integrations.NewERPClient(cfg.ErpBaseUrl, cfg.ErpApiKey, cfg.ErpTimeout(), nil)
	retrySvc := retry.NewService(st.queue, st.dead, retry.DefaultPolicy())

	js := buildJobs(cfg, erp, st, retrySvc)
	if err := s.RegisterAll(defs, js.runners()); err != nil {
		AppLogger.WithError(err).Fatal("❌ Lỗi khi đăng ký job")
	}
	for _, d := range defs {
		AppLogger.WithFields(logrus.Fields{
			"job_name": d.Name,
			"schedule": d.Schedule,
			"queue":    d.Queue,
			"enabled":  d.Enabled,
		}).Info("📋 Đã cấu hình job")
	}

	srv := &http.Server{
		Addr: cfg.AdminAddr,
		Handler: api.NewRouter(api.Deps{
			Jobs:     s,
			Ops:      js.operations(),
			Retry:    retrySvc,
			Metrics:  metrics,
			Gatherer: prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logger.NewStdLogger("api", "http", logrus.WarnLevel),
	}
	go func() {
		AppLogger.WithField("addr", cfg.AdminAddr).Info("🌐 Admin API đang lắng nghe")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			AppLogger.WithError(err).Error("❌ Admin API dừng")
			stop()
		}
	}()

	AppLogger.Info("═══════════════════════════════════════════════════════════")
	AppLogger.Info("🚀 Đang khởi động Scheduler...")
	s.Start()
	AppLogger.WithField("timezone", loc.String()).Info("✅ Scheduler đã được khởi động thành công!")
	AppLogger.Info("═══════════════════════════════════════════════════════════")

	<-ctx.Done()
	AppLogger.Info("🛑 Đang dừng agent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		AppLogger.WithError(err).Warn("Lỗi khi dừng admin API")
	}
	if err := s.Stop(shutdownCtx); err != nil {
		AppLogger.WithError(err).Warn("Một số job bị hủy khi dừng")
	}
	AppLogger.Info("👋 Agent đã dừng")
}
