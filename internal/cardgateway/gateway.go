// Package cardgateway submits prepaid scratch-card charges to the charging partner and
// classifies its answers.
package cardgateway

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tung090505/Shop-game-sub000/internal/logging"
	"github.com/Tung090505/Shop-game-sub000/internal/metrics"
	"github.com/Tung090505/Shop-game-sub000/internal/settings"
)

// ErrPartnerUnavailable marks a submission whose outcome is unknown because the partner
// could not be reached or answered garbage. The charge stays pending.
var ErrPartnerUnavailable = errors.New("card partner unavailable")

// ErrInvalidAmount marks a money field that is not a non-negative whole number.
var ErrInvalidAmount = errors.New("invalid amount")

// Partner status codes.
const (
	StatusSuccess      = 1
	StatusWrongValue   = 2
	StatusCardInvalid  = 3
	StatusMaintenance  = 4
	StatusPending      = 99
	StatusRequestError = 100
)

// Outcome is the gateway's classification of a partner status.
type Outcome string

const (
	ImmediateSuccess     Outcome = "success"
	ImmediateFailure     Outcome = "failure"
	PendingPartnerReview Outcome = "pending"
)

// Classify maps a partner status code to an outcome.
func Classify(status int) Outcome {
	switch status {
	case StatusSuccess:
		return ImmediateSuccess
	case StatusCardInvalid, StatusRequestError:
		return ImmediateFailure
	default:
		return PendingPartnerReview
	}
}

// Sign returns the request signature: lowercase hex MD5 of partnerKey, pin and serial
// concatenated without separators.
func Sign(partnerKey, pin, serial string) string {
	sum := md5.Sum([]byte(partnerKey + pin + serial))
	return hex.EncodeToString(sum[:])
}

// Charge is one card submission.
type Charge struct {
	Provider  string
	Serial    string
	PIN       string
	FaceValue int64
	RequestID string
}

// Result carries the outcome of Submit. Err is set when the outcome is pending because of a
// transport or decoding problem.
type Result struct {
	Outcome       Outcome
	PartnerStatus int
	Message       string
	// Value is the amount the partner reports as actually charged, when present.
	Value int64
	Err   error
}

// Charger is the dependency the deposit tracker needs.
type Charger interface {
	Submit(ctx context.Context, charge Charge) Result
}

// SettingsSource supplies partner credentials at call time.
type SettingsSource interface {
	Get(ctx context.Context, key string) (string, error)
}

// Client talks to the partner over HTTP.
type Client struct {
	settings SettingsSource
	http     *http.Client
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewClient builds a client whose submissions are bounded by timeout.
func NewClient(src SettingsSource, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Client {
	return &Client{
		settings: src,
		http:     &http.Client{Timeout: timeout},
		logger:   logging.Component(logger, "cardgateway"),
		metrics:  m,
	}
}

type chargeRequest struct {
	PartnerID string `json:"partner_id"`
	Telco     string `json:"telco"`
	Code      string `json:"code"`
	Serial    string `json:"serial"`
	Amount    int64  `json:"amount"`
	RequestID string `json:"request_id"`
	Sign      string `json:"sign"`
	Command   string `json:"command"`
}

type chargeResponse struct {
	Status  Code   `json:"status"`
	Message string `json:"message"`
	Value   Amount `json:"value"`
	Amount  Amount `json:"amount"`
}

// Submit signs and posts the charge. It never returns an error: anything that prevents a
// definitive answer degrades to PendingPartnerReview so the partner callback can settle it.
func (c *Client) Submit(ctx context.Context, charge Charge) Result {
	start := time.Now()
	res := c.submit(ctx, charge)
	c.metrics.GatewayRequest(string(res.Outcome), time.Since(start))

	attrs := []any{
		slog.String("request_id", charge.RequestID),
		slog.String("telco", charge.Provider),
		slog.String("outcome", string(res.Outcome)),
		slog.Int("partner_status", res.PartnerStatus),
	}
	if res.Err != nil {
		c.logger.Warn("card charge left pending", append(attrs, slog.Any("error", res.Err))...)
	} else {
		c.logger.Info("card charge submitted", attrs...)
	}
	return res
}

func (c *Client) submit(ctx context.Context, charge Charge) Result {
	partnerID, err := c.settings.Get(ctx, settings.KeyCardPartnerID)
	if err != nil {
		return pending(err)
	}
	partnerKey, err := c.settings.Get(ctx, settings.KeyCardPartnerKey)
	if err != nil {
		return pending(err)
	}
	endpoint, err := c.settings.Get(ctx, settings.KeyCardPartnerURL)
	if err != nil {
		return pending(err)
	}
	if partnerID == "" || partnerKey == "" || endpoint == "" {
		return pending(errors.New("partner credentials not configured"))
	}

	body, err := json.Marshal(chargeRequest{
		PartnerID: partnerID,
		Telco:     strings.ToUpper(charge.Provider),
		Code:      charge.PIN,
		Serial:    charge.Serial,
		Amount:    charge.FaceValue,
		RequestID: charge.RequestID,
		Sign:      Sign(partnerKey, charge.PIN, charge.Serial),
		Command:   "charging",
	})
	if err != nil {
		return pending(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return pending(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pending(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return pending(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pending(fmt.Errorf("partner http status %d", resp.StatusCode))
	}

	var decoded chargeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return pending(fmt.Errorf("decode response: %w", err))
	}

	status := int(decoded.Status)
	value := int64(decoded.Value)
	if value == 0 {
		value = int64(decoded.Amount)
	}
	return Result{
		Outcome:       Classify(status),
		PartnerStatus: status,
		Message:       decoded.Message,
		Value:         value,
	}
}

func pending(err error) Result {
	return Result{Outcome: PendingPartnerReview, Err: fmt.Errorf("%w: %v", ErrPartnerUnavailable, err)}
}

// Code decodes partner integers that arrive either as JSON numbers or numeric strings.
type Code int64

func (c *Code) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	v, err := ParseCode(s)
	if err != nil {
		return err
	}
	*c = Code(v)
	return nil
}

// Amount decodes partner money fields that arrive either as JSON numbers or numeric strings.
type Amount int64

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = Amount(v)
	return nil
}

// ParseAmount parses a money field in whole currency units. A zero fractional part such as
// "50000.00" is accepted; "10.99", negatives and non-numbers fail with ErrInvalidAmount.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsInteger() || d.IsNegative() || !d.LessThanOrEqual(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d.IntPart(), nil
}

// ParseCode parses a numeric partner status, tolerating a trailing decimal part.
func ParseCode(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric field %q", s)
	}
	return v, nil
}
