package config

// ObservabilityConfig represents observability configuration.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty" json:"log_format,omitempty"`

	// MetricsAddr is the listen address of the Prometheus endpoint. Empty
	// disables it.
	MetricsAddr string `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`

	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// TracingConfig represents tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`
	OTLPEndpoint string  `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty" json:"service_name,omitempty"`
}
