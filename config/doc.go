// Package config loads the callbridge configuration.
//
// Configuration comes from three layers, each overriding the one before:
// built-in defaults (Default), one or more JSON or YAML files, and CALLBRIDGE_*
// environment variables. Durations accept "250ms" style strings, a "d" suffix for
// days, or nanosecond numbers.
//
//	cfg, err := config.Load("callbridge.yaml")
//	if err != nil {
//		return err
//	}
//
// Layered loading:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.json")
//	loader.AddLayer("config/production.yaml")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// Validation failures wrap errors.ErrInvalidConfig.
//
// # Environment overrides
//
//	CALLBRIDGE_TRANSPORT        memory | nats | websocket
//	CALLBRIDGE_CODEC            json | cbor
//	CALLBRIDGE_NATS_URLS        comma separated
//	CALLBRIDGE_NATS_USERNAME, CALLBRIDGE_NATS_PASSWORD, CALLBRIDGE_NATS_TOKEN
//	CALLBRIDGE_NATS_PREFIX, CALLBRIDGE_CONNECTION_ID
//	CALLBRIDGE_WEBSOCKET_URL
//	CALLBRIDGE_COMMAND_TIMEOUT  duration
//	CALLBRIDGE_METRICS_ENABLED, CALLBRIDGE_METRICS_ADDR
//	CALLBRIDGE_LOG_LEVEL, CALLBRIDGE_LOG_FORMAT
package config
