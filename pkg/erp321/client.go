package erp321

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultBaseURL 聚水潭开放接口
const DefaultBaseURL = "https://open.erp321.com/api/open/query.aspx"

// MethodOrdersQuery 订单查询
const MethodOrdersQuery = "orders.single.query"

// MaxSoIDs 单次最多查询的线上单号数量
const MaxSoIDs = 20

var (
	// ErrTooManySoIDs 单号超过上限
	ErrTooManySoIDs = errors.New("erp321: too many so_ids")
	// ErrRequest 网络或响应解析失败
	ErrRequest = errors.New("erp321: request failed")
)

// APIError 聚水潭返回 issuccess=false
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("erp321 api error %d: %s", e.Code, e.Msg)
}

// Credentials 合作方凭证
type Credentials struct {
	PartnerID  string
	PartnerKey string
	Token      string
}

// Order 订单收货信息
type Order struct {
	SoID             string `json:"so_id"`
	OID              int64  `json:"o_id"`
	ReceiverName     string `json:"receiver_name"`
	ReceiverMobile   string `json:"receiver_mobile"`
	ReceiverState    string `json:"receiver_state"`
	ReceiverCity     string `json:"receiver_city"`
	ReceiverDistrict string `json:"receiver_district"`
}

type ordersResponse struct {
	Code      int     `json:"code"`
	IsSuccess bool    `json:"issuccess"`
	Msg       string  `json:"msg"`
	DataCount int     `json:"data_count"`
	Orders    []Order `json:"orders"`
}

// Client 聚水潭客户端
type Client struct {
	http  *resty.Client
	creds Credentials
	log   *zap.Logger
	now   func() time.Time
}

// NewClient 创建客户端，httpClient 需已设置 BaseURL
func NewClient(httpClient *resty.Client, creds Credentials, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:  httpClient,
		creds: creds,
		log:   log.Named("erp321"),
		now:   time.Now,
	}
}

// Sign md5(method + partnerid + "token" + token + "ts" + ts + partnerkey)
func Sign(method, partnerID, token string, ts int64, partnerKey string) string {
	raw := method + partnerID + "token" + token + "ts" + strconv.FormatInt(ts, 10) + partnerKey
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GetOrders 按线上单号批量查询订单
func (c *Client) GetOrders(ctx context.Context, soIDs []string) ([]Order, error) {
	if len(soIDs) == 0 {
		return nil, nil
	}
	if len(soIDs) > MaxSoIDs {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManySoIDs, len(soIDs), MaxSoIDs)
	}

	ts := c.now().Unix()
	var out ordersResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"method":    MethodOrdersQuery,
			"partnerid": c.creds.PartnerID,
			"token":     c.creds.Token,
			"ts":        strconv.FormatInt(ts, 10),
			"sign":      Sign(MethodOrdersQuery, c.creds.PartnerID, c.creds.Token, ts, c.creds.PartnerKey),
		}).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"so_ids":     soIDs,
			"page_index": 1,
			"page_size":  50,
		}).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: http %d", ErrRequest, resp.StatusCode())
	}
	// 响应 Content-Type 不固定，手动解码
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrRequest, err)
	}
	if !out.IsSuccess || out.Code != 0 {
		return nil, &APIError{Code: out.Code, Msg: out.Msg}
	}

	c.log.Debug("[Erp321] 查询订单",
		zap.Int("requested", len(soIDs)),
		zap.Int("returned", len(out.Orders)),
	)
	return out.Orders, nil
}
