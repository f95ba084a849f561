// Package config loads the server configuration.
//
// Values come from, in increasing precedence: built-in defaults, an
// optional YAML file (tabletop.yaml in the working directory or ./config,
// or an explicit path), and environment variables named
// TABLETOP_<SECTION>_<KEY>. PORT, NGROK_ENABLED, NGROK_AUTHTOKEN and
// NGROK_DOMAIN are also honored.
//
// Example:
//
//	server:
//	  port: 8080
//	  health_address: ":8081"
//	room:
//	  patch_interval: 50ms
//	  reconnect_grace: 60s
//	  max_clients: 4
//	  default_life: 40
//	redis:
//	  enabled: true
//	  address: localhost:6379
//	logging:
//	  level: info
//	  format: json
package config
