// Package mqtt is the transport adapter between the sortation engine and the
// field controllers. Sorters publish requests and reports over the broker;
// the listener answers on per-sorter response topics.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/prtline/sortation/core/dispatch"
	"github.com/prtline/sortation/core/model"
	"github.com/prtline/sortation/infra/logger"
)

// Topic layout under the configured prefix.
const (
	topicRequest   = "sorter/+/request"
	topicReport    = "sorter/+/report"
	topicRemoval   = "removal"
	topicHeartbeat = "heartbeat"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	QoS         byte        `json:"qos"`
	LWTTopic    string      `json:"lwt_topic"`
	LWTPayload  string      `json:"lwt_payload"`
	HeartbeatS  int         `json:"heartbeat_seconds"`
	TLSConfig   *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "sortation"
	}
	if c.ClientID == "" {
		c.ClientID = "sortation-engine"
	}
	if c.HeartbeatS <= 0 {
		c.HeartbeatS = 2
	}
}

// Handler is the engine surface the transport decodes into.
type Handler interface {
	OnRequest(ctx context.Context, sorterID, transactionID int, barcode string, at time.Time) (dispatch.Response, error)
	OnReport(ctx context.Context, sorterID int, barcode string, flags model.ReportFlags, at time.Time) error
	OnRemoval(ctx context.Context, barcode string, area int, at time.Time) error
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Listener subscribes to the sorter topics and forwards decoded messages to
// the Handler.
type Listener struct {
	cli     pahoClient
	cfg     Config
	handler Handler
	log     logger.Logger
}

// NewListener connects to the broker and subscribes to the request, report
// and removal topics.
func NewListener(cfg Config, h Handler) (*Listener, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_listener")
	l := &Listener{cfg: cfg, handler: h, log: log}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		subs := map[string]paho.MessageHandler{
			l.topic(topicRequest): l.onRequest,
			l.topic(topicReport):  l.onReport,
			l.topic(topicRemoval): l.onRemoval,
		}
		for t, cb := range subs {
			if token := c.Subscribe(t, cfg.QoS, cb); token.Wait() && token.Error() != nil {
				log.Errorf("subscribe %s: %v", t, token.Error())
			}
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	l.cli = c
	return l, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.QoS, false)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (l *Listener) topic(suffix string) string {
	return l.cfg.TopicPrefix + "/" + suffix
}

// sorterFromTopic extracts the sorter number from topics shaped like
// <prefix>/sorter/<id>/<leaf>.
func sorterFromTopic(topic string) (int, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed topic %q", topic)
	}
	return strconv.Atoi(parts[len(parts)-2])
}

func msgTime(unixMilli int64) time.Time {
	if unixMilli == 0 {
		return time.Now()
	}
	return time.UnixMilli(unixMilli)
}

func (l *Listener) onRequest(_ paho.Client, msg paho.Message) {
	var req RequestMessage
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		l.log.Errorf("decode request: %v", err)
		return
	}
	sorterID := req.SorterID
	if id, err := sorterFromTopic(msg.Topic()); err == nil && id > 0 {
		sorterID = id
	}
	resp, err := l.handler.OnRequest(context.Background(), sorterID, req.TransactionID, req.Barcode, msgTime(req.Timestamp))
	respTopic := fmt.Sprintf("%s/sorter/%d/response", l.cfg.TopicPrefix, sorterID)
	if err != nil {
		l.log.Warnf("request sorter=%d txn=%d rejected: %v", sorterID, req.TransactionID, err)
		l.publishJSON(respTopic, ErrorMessage{
			TransactionID: req.TransactionID,
			Barcode:       req.Barcode,
			Error:         err.Error(),
			Timestamp:     time.Now().UnixMilli(),
		})
		return
	}
	l.publishJSON(respTopic, ResponseMessage{
		ResponseID:    resp.ID,
		TransactionID: resp.TransactionID,
		Barcode:       resp.Barcode,
		Destination:   int(resp.Destination),
		Gate:          int(resp.Gate),
		Timestamp:     resp.Time.UnixMilli(),
	})
}

func (l *Listener) onReport(_ paho.Client, msg paho.Message) {
	var rep ReportMessage
	if err := json.Unmarshal(msg.Payload(), &rep); err != nil {
		l.log.Errorf("decode report: %v", err)
		return
	}
	sorterID := rep.SorterID
	if id, err := sorterFromTopic(msg.Topic()); err == nil && id > 0 {
		sorterID = id
	}
	if err := l.handler.OnReport(context.Background(), sorterID, rep.Barcode, rep.Flags, msgTime(rep.Timestamp)); err != nil {
		l.log.Warnf("report sorter=%d barcode=%s discarded: %v", sorterID, rep.Barcode, err)
	}
}

func (l *Listener) onRemoval(_ paho.Client, msg paho.Message) {
	var rm RemovalMessage
	if err := json.Unmarshal(msg.Payload(), &rm); err != nil {
		l.log.Errorf("decode removal: %v", err)
		return
	}
	if err := l.handler.OnRemoval(context.Background(), rm.Barcode, rm.Area, msgTime(rm.Timestamp)); err != nil {
		l.log.Errorf("removal barcode=%s: %v", rm.Barcode, err)
	}
}

func (l *Listener) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		l.log.Errorf("encode %s: %v", topic, err)
		return
	}
	token := l.cli.Publish(topic, l.cfg.QoS, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		l.log.Errorf("publish %s: %v", topic, err)
	}
}

// RunHeartbeat publishes a liveness beacon on the heartbeat topic until the
// context is canceled. Field controllers treat a silent engine as offline.
func (l *Listener) RunHeartbeat(ctx context.Context) {
	interval := time.Duration(l.cfg.HeartbeatS) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case t := <-ticker.C:
			l.publishJSON(l.topic(topicHeartbeat), map[string]int64{"time": t.UnixMilli()})
		case <-ctx.Done():
			return
		}
	}
}

// Disconnect gracefully closes the MQTT connection.
func (l *Listener) Disconnect() {
	if l.cli != nil && l.cli.IsConnected() {
		l.cli.Disconnect(250)
	}
}
