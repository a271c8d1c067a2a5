package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"agent_erpsync/app/scheduler"
	"agent_erpsync/utility/logger"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

// Configuration chứa thông tin tĩnh cần thiết để chạy ứng dụng
type Configuration struct {
	ErpBaseUrl        string `env:"ERP_BASE_URL,required"`                      // Địa chỉ ERP gateway
	ErpApiKey         string `env:"ERP_API_KEY"`                                // API key gửi kèm header Authorization
	ErpTimeoutSeconds int    `env:"ERP_TIMEOUT_SECONDS" envDefault:"30"`        // Timeout mỗi request tới ERP
	SyncTimezone      string `env:"SYNC_TIMEZONE" envDefault:"Europe/Istanbul"` // Timezone để tính lịch cron
	AdminAddr         string `env:"ADMIN_ADDR" envDefault:":8085"`              // Địa chỉ lắng nghe của admin API

	MongoUri      string `env:"MONGO_URI"` // Rỗng = lưu history/dead-letter trong memory
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"erpsync"`
	RedisAddr     string `env:"REDIS_ADDR"` // Rỗng = hàng đợi retry trong memory
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	OrderPushBatchSize int `env:"ORDER_PUSH_BATCH_SIZE" envDefault:"50"`
	OrderPushDelayMs   int `env:"ORDER_PUSH_DELAY_MS" envDefault:"500"`
	RetryBatchSize     int `env:"RETRY_BATCH_SIZE" envDefault:"50"`

	QueueSyncWorkers   int `env:"QUEUE_SYNC_WORKERS" envDefault:"1"`
	QueueOrdersWorkers int `env:"QUEUE_ORDERS_WORKERS" envDefault:"1"`
	QueueRetryWorkers  int `env:"QUEUE_RETRY_WORKERS" envDefault:"1"`

	// Override cho từng job. Rỗng/0 = dùng giá trị mặc định.
	JobStockSyncCron           string `env:"JOB_STOCK_SYNC_CRON"`
	JobStockSyncEnabled        string `env:"JOB_STOCK_SYNC_ENABLED"`
	JobStockSyncTimeoutMinutes int    `env:"JOB_STOCK_SYNC_TIMEOUT_MINUTES"`
	JobPriceSyncCron           string `env:"JOB_PRICE_SYNC_CRON"`
	JobPriceSyncEnabled        string `env:"JOB_PRICE_SYNC_ENABLED"`
	JobPriceSyncTimeoutMinutes int    `env:"JOB_PRICE_SYNC_TIMEOUT_MINUTES"`
	JobFullSyncCron            string `env:"JOB_FULL_SYNC_CRON"`
	JobFullSyncEnabled         string `env:"JOB_FULL_SYNC_ENABLED"`
	JobFullSyncTimeoutMinutes  int    `env:"JOB_FULL_SYNC_TIMEOUT_MINUTES"`
	JobOrderPushCron           string `env:"JOB_ORDER_PUSH_CRON"`
	JobOrderPushEnabled        string `env:"JOB_ORDER_PUSH_ENABLED"`
	JobOrderPushTimeoutMinutes int    `env:"JOB_ORDER_PUSH_TIMEOUT_MINUTES"`
	JobRetryCron               string `env:"JOB_RETRY_CRON"`
	JobRetryEnabled            string `env:"JOB_RETRY_ENABLED"`
	JobRetryTimeoutMinutes     int    `env:"JOB_RETRY_TIMEOUT_MINUTES"`
}

// LogConfig trả về cấu hình logger từ environment variables
func LogConfig() *logger.Config {
	return logger.NewConfig()
}

// NewConfig đọc cấu hình từ environment variables hoặc file .env.
// Ưu tiên: Environment variables (systemd EnvironmentFile) > File .env (development).
func NewConfig(files ...string) (*Configuration, error) {
	cfg := Configuration{}

	// Bước 1: parse từ environment variables trước
	err := env.Parse(&cfg)
	if err == nil {
		log.Printf("Đã đọc cấu hình từ environment variables\n")
		return &cfg, cfg.Validate()
	}
	log.Printf("Không thể parse từ environment variables: %v, thử load từ file .env\n", err)

	// Bước 2: fallback về file .env (cho development)
	if len(files) == 0 {
		files = []string{filepath.Join(".env")}
	}
	if err := godotenv.Load(files...); err != nil {
		log.Printf("Không tìm thấy file %v (sẽ dùng environment variables nếu có)\n", files)
	} else {
		log.Printf("Đã load file %v\n", files)
	}

	cfg = Configuration{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, cfg.Validate()
}

// Validate kiểm tra các giá trị không thể kiểm tra bằng struct tag
func (c *Configuration) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.JobDefinitions(); err != nil {
		return err
	}
	return nil
}

// Location trả về timezone dùng để tính lịch cron
func (c *Configuration) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.SyncTimezone)
	if err != nil {
		return nil, fmt.Errorf("SYNC_TIMEZONE không hợp lệ %q: %w", c.SyncTimezone, err)
	}
	return loc, nil
}

// ErpTimeout trả về timeout của request tới ERP
func (c *Configuration) ErpTimeout() time.Duration {
	if c.ErpTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ErpTimeoutSeconds) * time.Second
}

// OrderPushDelay trả về delay giữa hai lần push; 0 trong env nghĩa là không chờ
func (c *Configuration) OrderPushDelay() time.Duration {
	if c.OrderPushDelayMs <= 0 {
		return -1
	}
	return time.Duration(c.OrderPushDelayMs) * time.Millisecond
}

// LaneWorkers trả về số worker của từng queue
func (c *Configuration) LaneWorkers() map[scheduler.Queue]int {
	return map[scheduler.Queue]int{
		scheduler.QueueSync:   c.QueueSyncWorkers,
		scheduler.QueueOrders: c.QueueOrdersWorkers,
		scheduler.QueueRetry:  c.QueueRetryWorkers,
	}
}

type jobOverride struct {
	cron    string
	enabled string
	timeout int
}

func (c *Configuration) overrides() map[string]jobOverride {
	return map[string]jobOverride{
		scheduler.JobStockSync: {c.JobStockSyncCron, c.JobStockSyncEnabled, c.JobStockSyncTimeoutMinutes},
		scheduler.JobPriceSync: {c.JobPriceSyncCron, c.JobPriceSyncEnabled, c.JobPriceSyncTimeoutMinutes},
		scheduler.JobFullSync:  {c.JobFullSyncCron, c.JobFullSyncEnabled, c.JobFullSyncTimeoutMinutes},
		scheduler.JobOrderPush: {c.JobOrderPushCron, c.JobOrderPushEnabled, c.JobOrderPushTimeoutMinutes},
		scheduler.JobRetry:     {c.JobRetryCron, c.JobRetryEnabled, c.JobRetryTimeoutMinutes},
	}
}

// JobDefinitions trả về danh sách job mặc định sau khi áp dụng override từ env
func (c *Configuration) JobDefinitions() ([]scheduler.JobDefinition, error) {
	defs := scheduler.DefaultDefinitions()
	overrides := c.overrides()
	for i := range defs {
		o, ok := overrides[defs[i].Name]
		if !ok {
			continue
		}
		if o.cron != "" {
			defs[i].Schedule = strings.TrimSpace(o.cron)
		}
		if o.enabled != "" {
			enabled, err := strconv.ParseBool(o.enabled)
			if err != nil {
				return nil, fmt.Errorf("giá trị enabled không hợp lệ cho %s: %q", defs[i].Name, o.enabled)
			}
			defs[i].Enabled = enabled
		}
		if o.timeout > 0 {
			defs[i].TimeoutMinutes = o.timeout
		}
		if err := defs[i].Validate(); err != nil {
			return nil, err
		}
	}
	return defs, nil
}
