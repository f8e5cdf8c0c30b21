package influx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/iot-monitoring/ingestor/internal/infrastructure/config"
	"github.com/iot-monitoring/ingestor/internal/store"
)

// defaultRequestTimeout applies when the dialer is given no timeout.
const defaultRequestTimeout = 10 * time.Second

// Dialer opens InfluxDB v2 clients for the store manager.
type Dialer struct {
	cfg     config.InfluxDBConfig
	table   store.Table
	timeout time.Duration
}

var _ store.Dialer = (*Dialer)(nil)

// New creates a Dialer. The table name is used as the measurement.
func New(cfg config.InfluxDBConfig, table store.Table, timeout time.Duration) *Dialer {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Dialer{cfg: cfg, table: table, timeout: timeout}
}

// Name implements store.Dialer.
func (d *Dialer) Name() string { return config.BackendInfluxDB }

// Dial creates a client and verifies the server is healthy.
// Errors wrap store.ErrConnectivity.
func (d *Dialer) Dial(ctx context.Context) (store.Conn, error) {
	client := influxdb2.NewClientWithOptions(
		d.cfg.URL,
		d.cfg.Token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(d.timeout/time.Second)),
	)

	pingCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, store.Connectivity(fmt.Errorf("influxdb ping failed: %w", err))
	}
	if !healthy {
		client.Close()
		return nil, store.Connectivity(errors.New("influxdb server not healthy"))
	}

	return &Conn{
		client:   client,
		writeAPI: client.WriteAPIBlocking(d.cfg.Org, d.cfg.Bucket),
		cfg:      d.cfg,
		table:    d.table,
	}, nil
}

// Conn is one InfluxDB client with a blocking write API.
type Conn struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	cfg      config.InfluxDBConfig
	table    store.Table
}

// EnsureSchema makes sure the bucket exists, creating it in the configured
// organisation if necessary. InfluxDB has no table DDL; the column set is
// enforced by Insert instead.
func (c *Conn) EnsureSchema(ctx context.Context) error {
	buckets := c.client.BucketsAPI()

	_, err := buckets.FindBucketByName(ctx, c.cfg.Bucket)
	if err == nil {
		return nil
	}
	var httpErr *ihttp.Error
	if errors.As(err, &httpErr) {
		return classifyError(fmt.Errorf("looking up bucket %s: %w", c.cfg.Bucket, err))
	}

	// Not found: create it.
	org, err := c.client.OrganizationsAPI().FindOrganizationByName(ctx, c.cfg.Org)
	if err != nil {
		return classifyError(fmt.Errorf("looking up organisation %s: %w", c.cfg.Org, err))
	}
	if _, err := buckets.CreateBucketWithName(ctx, org, c.cfg.Bucket); err != nil {
		return classifyError(fmt.Errorf("creating bucket %s: %w", c.cfg.Bucket, err))
	}
	return nil
}

// Insert writes one reading as one point: measurement = table name,
// tag device_id, one field per non-null reading field.
//
// Field names outside the table's column set are rejected with
// store.ErrSchema before anything is sent, matching the SQL backends.
func (c *Conn) Insert(ctx context.Context, r store.Reading) error {
	point, err := c.point(r)
	if err != nil {
		return err
	}
	if err := c.writeAPI.WritePoint(ctx, point); err != nil {
		return classifyError(fmt.Errorf("writing point to %s: %w", c.cfg.Bucket, err))
	}
	return nil
}

func (c *Conn) point(r store.Reading) (*write.Point, error) {
	fields := make(map[string]interface{}, len(r.Fields))
	for _, f := range r.Fields {
		col, ok := c.table.Column(f.Name)
		if !ok || f.Name == store.TimestampColumn || f.Name == store.DeviceColumn {
			return nil, store.Schema(fmt.Errorf("measurement %s has no field %q", c.table.Name, f.Name))
		}
		if f.Value == nil {
			continue
		}
		v, err := fieldValue(col, f.Value)
		if err != nil {
			return nil, err
		}
		fields[f.Name] = v
	}
	if len(fields) == 0 {
		return nil, store.Schema(errors.New("reading has no non-null fields"))
	}

	return write.NewPoint(
		c.table.Name,
		map[string]string{store.DeviceColumn: r.DeviceID},
		fields,
		r.Timestamp,
	), nil
}

// fieldValue converts v to the field type of col. InfluxDB fixes a field's
// type on first write, so a DOUBLE column must never be sent as an integer
// just because the payload spelled 5.0 as 5.
func fieldValue(col store.Column, v any) (any, error) {
	switch col.Type {
	case store.TypeDouble:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
	case store.TypeInt, store.TypeLong:
		switch n := v.(type) {
		case int64:
			return n, nil
		case float64:
			if n == math.Trunc(n) && n >= math.MinInt64 && n < math.MaxInt64 {
				return int64(n), nil
			}
		}
	}
	return nil, store.Schema(fmt.Errorf("field %q: %T value %v does not fit column type %s", col.Name, v, v, col.Type))
}

// Ping verifies the server is healthy.
func (c *Conn) Ping(ctx context.Context) error {
	healthy, err := c.client.Ping(ctx)
	if err != nil {
		return classifyError(fmt.Errorf("influxdb health check failed: %w", err))
	}
	if !healthy {
		return store.Connectivity(errors.New("influxdb health check failed: server not healthy"))
	}
	return nil
}

// Close releases the client. The client's Close has no error result.
func (c *Conn) Close() error {
	c.client.Close()
	return nil
}

// classifyError maps InfluxDB API errors onto the store error classes.
//
// A 4xx response means the request itself was refused (bad field type,
// unknown bucket, bad token) and is a schema error, except timeouts and
// rate limiting. Everything else, including transport errors and 5xx, is
// connectivity-class.
func classifyError(err error) error {
	var httpErr *ihttp.Error
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode
		if code >= 400 && code < 500 &&
			code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
			return store.Schema(err)
		}
		return store.Connectivity(err)
	}
	return store.Connectivity(err)
}
