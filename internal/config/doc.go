// Package config provides the retryctl configuration model.
//
// A configuration file describes one retry policy and the observability
// settings of the process. Files are YAML with ${VAR} and ${VAR:-default}
// environment substitution; unknown keys are rejected and missing keys keep
// the values of DefaultConfig.
//
//	policy:
//	  name: fetch-orders
//	  max_attempts: 5
//	  attempt_timeout: 10s
//	  backoff:
//	    type: full_jitter
//	    base: 200ms
//	    max: 10s
//	  retry_on:
//	    network: true
//	    http_status: [429, 502, 503, 504]
//	    rules:
//	      - name: conflict
//	        when: err.http_status == 409
//	        action: retry_after
//	        after: 2s
//	  circuit_breaker:
//	    enabled: true
//	    failure_threshold: 5
//	    open_for: 30s
//	observability:
//	  log_level: info
//	  metrics_addr: ":9090"
//
// # Loading
//
//	cfg, err := config.LoadConfig("retryctl.yaml")
//	if err != nil {
//	    return err
//	}
//	policy, err := cfg.Policy.Build(config.BuildOptions{Logger: logger})
//
// # Hot reload
//
// Watcher reloads the file when it changes and hands every valid new
// configuration to a callback. Invalid revisions are reported and the
// previous configuration stays current.
package config
