// Package config provides configuration loading and validation for parley.
//
// # Overview
//
// Configuration is read from a YAML file (or TOML when the file ends in
// .toml). Anything the file leaves out keeps the value from Default(), so an
// empty or missing default file is a working configuration.
//
// # Location
//
// ResolvePath picks the file in this order:
//
//  1. the --config flag
//  2. $PARLEY_CONFIG
//  3. $XDG_CONFIG_HOME/parley/config.yaml
//  4. ~/.config/parley/config.yaml
//
// # Environment Variable Expansion
//
// ${VAR_NAME} anywhere in the file is replaced with the variable's value
// before parsing; unset variables expand to "".
//
//	devserver:
//	  jwt_secret: "${PARLEY_JWT_SECRET}"
//
// # Example
//
//	server:
//	  base_url: "http://localhost:8000"
//	  timeout: "60s"
//
//	client:
//	  default_language: "en"    # en or ar
//	  default_model: ""
//	  token_file: ""            # default: <config dir>/token
//
//	logging:
//	  level: "info"             # debug, info, warn, error
//	  format: "text"            # text or json
//
//	devserver:
//	  http_addr: "127.0.0.1:8000"
//	  database_path: "parley-dev.db"
//	  jwt_secret: "${PARLEY_JWT_SECRET}"
//	  token_ttl: "24h"
//	  idempotency_ttl: "10m"
//	  idempotency_cache_size: 10000
//	  models:
//	    - name: "echo"
//	      english: true
//	      arabic: true
//
// # Durations
//
// Duration fields use Go duration syntax ("30s", "5m", "24h").
package config
