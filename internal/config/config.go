package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport selects how events reach the service.
const (
	TransportKafka   = "kafka"
	TransportNATS    = "nats"
	TransportWebhook = "webhook"
)

type Config struct {
	Transport  string
	ListenAddr string

	KafkaBrokers []string
	KafkaGroupID string
	KafkaTopic   string

	NATSURL     string
	NATSStream  string
	NATSSubject string
	NATSDurable string

	RegistryURL        string
	RegistryAddressing string // path | header
	TenantAddressing   string // id | name
	AssignEnabled      bool
	ProbeBeforeWrite   bool

	TBHTTPEndpoint    string
	TBMQTTEndpoint    string
	TBHistoryEndpoint string
	TBLatestEndpoint  string
	TBDeviceAPIURL    string

	JournalDSN  string
	HTTPTimeout time.Duration
}

// MustLoad loads the required settings for the system to operate
func MustLoad() Config {
	cfg := Config{
		Transport:  getenv("TRANSPORT", TransportKafka),
		ListenAddr: getenv("LISTEN_ADDR", ":9090"),

		KafkaBrokers: strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaGroupID: getenv("KAFKA_GROUP_ID", "thing-sync"),
		KafkaTopic:   getenv("KAFKA_TOPIC", "device-lifecycle-events"),

		NATSURL:     getenv("NATS_URL", "nats://localhost:4222"),
		NATSStream:  getenv("NATS_STREAM", "DEVICE_EVENTS"),
		NATSSubject: getenv("NATS_SUBJECT", "devices.lifecycle"),
		NATSDurable: getenv("NATS_DURABLE", "thing-sync"),

		RegistryURL:        getenv("THING_REGISTRY_URL", "http://localhost:8080/registry"),
		RegistryAddressing: getenv("REGISTRY_ADDRESSING", "path"),
		TenantAddressing:   getenv("TENANT_ADDRESSING", "id"),
		AssignEnabled:      getbool("ASSIGN_ENABLED", true),
		ProbeBeforeWrite:   getbool("PROBE_BEFORE_WRITE", false),

		TBHTTPEndpoint:    getenv("THINGSBOARD_HTTP_ENDPOINT", "http://localhost:8081"),
		TBMQTTEndpoint:    getenv("THINGSBOARD_MQTT_ENDPOINT", "mqtt://localhost:1883"),
		TBHistoryEndpoint: getenv("THINGSBOARD_HISTORY_ENDPOINT", "http://localhost:8082/history"),
		TBLatestEndpoint:  getenv("THINGSBOARD_LATEST_ENDPOINT", "http://localhost:8082/latest"),
		TBDeviceAPIURL:    getenv("THINGSBOARD_HTTP_DEVICE_API_URL", "http://localhost:8081/api/v1"),

		JournalDSN: getenv("JOURNAL_DSN", ""),
	}

	sec, _ := strconv.Atoi(getenv("HTTP_TIMEOUT_SEC", "15"))
	cfg.HTTPTimeout = time.Duration(sec) * time.Second

	mustBeOneOf("TRANSPORT", cfg.Transport, TransportKafka, TransportNATS, TransportWebhook)
	mustBeOneOf("REGISTRY_ADDRESSING", cfg.RegistryAddressing, "path", "header")
	mustBeOneOf("TENANT_ADDRESSING", cfg.TenantAddressing, "id", "name")

	return cfg
}

// getenv fetches the env variables for the application to run
func getenv(k, d string) string {
	if v, ok := os.LookupEnv(k); ok {
		return v
	}
	return d
}

func getbool(k string, d bool) bool {
	v, ok := os.LookupEnv(k)
	if !ok {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func mustBeOneOf(name, v string, allowed ...string) {
	for _, a := range allowed {
		if v == a {
			return
		}
	}
	panic(fmt.Sprintf("%s must be one of %s, got %q", name, strings.Join(allowed, "|"), v))
}
