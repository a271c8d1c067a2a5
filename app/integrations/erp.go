/*
Package integrations chứa các client gọi hệ thống bên ngoài.
File này chứa ERPClient: HTTP JSON client tới ERP gateway, implement các service
mà job cần (DeltaSyncer cho từng domain, OrderPusher, CustomerUpserter).
*/
package integrations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"agent_erpsync/app/jobs"
	"agent_erpsync/app/utility"
	"agent_erpsync/utility/httpclient"
	"agent_erpsync/utility/logger"

	"github.com/sirupsen/logrus"
)

// ERPClient gọi ERP gateway. Mỗi request chờ rate limiter trước khi gửi.
type ERPClient struct {
	http    *httpclient.HttpClient
	limiter *utility.AdaptiveRateLimiter
	log     *logrus.Logger
}

var (
	_ jobs.OrderPusher      = (*ERPClient)(nil)
	_ jobs.CustomerUpserter = (*ERPClient)(nil)
)

// NewERPClient tạo client. limiter nil dùng limiter mặc định (100ms, 50ms..5s).
func NewERPClient(baseURL, apiKey string, timeout time.Duration, limiter *utility.AdaptiveRateLimiter) *ERPClient {
	c := httpclient.NewHttpClient(baseURL, timeout)
	if apiKey != "" {
		c.SetHeader("Authorization", "Bearer "+apiKey)
	}
	if limiter == nil {
		limiter = utility.NewAdaptiveRateLimiter("erp", 100*time.Millisecond, 50*time.Millisecond, 5*time.Second)
	}
	return &ERPClient{http: c, limiter: limiter, log: logger.GetLogger("erp")}
}

// do gửi request, ghi nhận status vào rate limiter và decode response vào out
func (c *ERPClient) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	started := time.Now()
	var (
		resp *http.Response
		err  error
	)
	switch method {
	case http.MethodGet:
		resp, err = c.http.GET(ctx, endpoint, nil)
	default:
		resp, err = c.http.POST(ctx, endpoint, body, nil)
	}
	if err != nil {
		c.log.WithError(err).WithField("endpoint", endpoint).Warn("❌ Không gọi được ERP")
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	c.limiter.RecordResponse(resp.StatusCode)

	c.log.WithFields(logrus.Fields{
		"method":      method,
		"endpoint":    endpoint,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Debug("ERP request")

	if err := httpclient.ParseJSONResponse(resp, out); err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	return nil
}

// Domain trả về DeltaSyncer cho một domain (stock, price, customer, order)
func (c *ERPClient) Domain(name string) *DomainSyncer {
	return &DomainSyncer{client: c, domain: name}
}

// PushOrder đẩy một order sang ERP.
// Lỗi 422 được hiểu là ERP từ chối order và trả về trong PushResult.Errors.
func (c *ERPClient) PushOrder(ctx context.Context, orderID string) (jobs.PushResult, error) {
	var res jobs.PushResult
	err := c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/push", struct{}{}, &res)
	return rejectedAsResult(res, err)
}

// UpsertCustomer tạo hoặc cập nhật customer (Cari) trên ERP
func (c *ERPClient) UpsertCustomer(ctx context.Context, userID int64) (jobs.PushResult, error) {
	var res jobs.PushResult
	err := c.do(ctx, http.MethodPost, "/customers/"+strconv.FormatInt(userID, 10)+"/upsert", struct{}{}, &res)
	return rejectedAsResult(res, err)
}

func rejectedAsResult(res jobs.PushResult, err error) (jobs.PushResult, error) {
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusUnprocessableEntity {
		return jobs.PushResult{Success: false, Errors: []string{se.Error()}}, nil
	}
	return res, err
}

// DomainSyncer implement jobs.DeltaSyncer cho một domain qua ERP gateway
type DomainSyncer struct {
	client *ERPClient
	domain string
}

var _ jobs.DeltaSyncer = (*DomainSyncer)(nil)

type deltaRequest struct {
	Since *string `json:"since"`
}

func (d *DomainSyncer) SyncDelta(ctx context.Context, since *time.Time) (jobs.SyncResult, error) {
	req := deltaRequest{}
	if since != nil {
		s := since.UTC().Format(time.RFC3339)
		req.Since = &s
	}
	var res jobs.SyncResult
	err := d.client.do(ctx, http.MethodPost, "/sync/"+d.domain+"/delta", req, &res)
	return res, err
}

func (d *DomainSyncer) SyncFull(ctx context.Context) (jobs.SyncResult, error) {
	var res jobs.SyncResult
	err := d.client.do(ctx, http.MethodPost, "/sync/"+d.domain+"/full", struct{}{}, &res)
	return res, err
}

func (d *DomainSyncer) GetState(ctx context.Context) (jobs.SyncState, error) {
	var st jobs.SyncState
	if err := d.client.do(ctx, http.MethodGet, "/sync/"+d.domain+"/state", nil, &st); err != nil {
		return st, err
	}
	if st.SyncType == "" {
		st.SyncType = d.domain
	}
	if st.LastStatus == "" {
		st.LastStatus = jobs.SyncStatusNever
	}
	return st, nil
}
